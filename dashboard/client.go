// Package dashboard is a small REST client for an external
// container-compose dashboard (spec.md §6.5's "container dashboard"
// collaborator, §4.7's update sequence).
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/deployhub/deployhub-core/registry"
)

// Client is the capability surface the dashboard-update pipeline step
// needs.
type Client interface {
	// GetApp reports whether app already exists on the dashboard at
	// baseURL authenticated with key.
	GetApp(ctx context.Context, baseURL, key, app string) (bool, error)
	// CreateApp registers a new application on the dashboard.
	CreateApp(ctx context.Context, baseURL, key, app string) error
	// UpdateCompose uploads one compose file's contents under its
	// filename.
	UpdateCompose(ctx context.Context, baseURL, key, app, filename string, contents []byte) error
	// UpdateInstance requests the dashboard roll app's instance to
	// version.
	UpdateInstance(ctx context.Context, baseURL, key, app, instance, version string) error
}

// Constructor builds a Client from configuration.
type Constructor func(config map[string]any) (Client, error)

var clients = registry.New[Constructor]()

// RegisterClient adds a client constructor by name.
func RegisterClient(name string, constructor Constructor) error {
	return clients.Register(name, constructor)
}

// LookupClient returns a named client constructor if registered.
func LookupClient(name string) (Constructor, bool) {
	return clients.Get(name)
}

// bigboatClient is the default Client.
type bigboatClient struct {
	http *http.Client
}

// NewBigboatClient constructs the default Client.
func NewBigboatClient(map[string]any) (Client, error) {
	return &bigboatClient{http: http.DefaultClient}, nil
}

func init() {
	_ = RegisterClient("bigboat", NewBigboatClient)
}

func (c *bigboatClient) GetApp(ctx context.Context, baseURL, key, app string) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, baseURL, key, "/apps/"+app, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("dashboard: unexpected status %d checking app %s", resp.StatusCode, app)
	}
}

func (c *bigboatClient) CreateApp(ctx context.Context, baseURL, key, app string) error {
	body, err := json.Marshal(map[string]string{"name": app})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, baseURL, key, "/apps", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("dashboard: create app %s failed with status %d", app, resp.StatusCode)
	}
	return nil
}

func (c *bigboatClient) UpdateCompose(ctx context.Context, baseURL, key, app, filename string, contents []byte) error {
	path := fmt.Sprintf("/apps/%s/compose/%s", app, filename)
	resp, err := c.do(ctx, http.MethodPut, baseURL, key, path, bytes.NewReader(contents))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("dashboard: update compose %s for %s failed with status %d", filename, app, resp.StatusCode)
	}
	return nil
}

func (c *bigboatClient) UpdateInstance(ctx context.Context, baseURL, key, app, instance, version string) error {
	body, err := json.Marshal(map[string]string{"app": app, "instance": instance, "version": version})
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/apps/%s/instances/%s", app, instance)
	resp, err := c.do(ctx, http.MethodPatch, baseURL, key, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("dashboard: update instance %s/%s failed with status %d", app, instance, resp.StatusCode)
	}
	return nil
}

func (c *bigboatClient) do(ctx context.Context, method, baseURL, key, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}
