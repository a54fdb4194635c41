// Package ci is a small REST client against a Jenkins-shaped CI server,
// grounded on the /job/<name>/api/json wire shape exercised by
// kubernetes-test-infra's prow/jenkins test fixtures. It implements the CI
// client contract spec.md §6.5 describes; the freshness check of
// spec.md §4.6 is deployment.CheckCI, in the deployment package, which
// consumes this client's Job/Build types.
package ci

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/deployhub/deployhub-core/registry"
)

// Artifact is one file a build published.
type Artifact struct {
	RelativePath string `json:"relativePath"`
}

// Action is one entry in a build's "actions" array. Jenkins build
// actions are heterogeneous; only the fields checkCI needs are decoded.
type Action struct {
	LastBuiltRevision *struct {
		SHA1   string `json:"SHA1"`
		Branch []struct {
			Name string `json:"name"`
		} `json:"branch"`
	} `json:"lastBuiltRevision,omitempty"`
}

// Build is one Jenkins build record.
type Build struct {
	Number    int      `json:"number"`
	Building  bool     `json:"building"`
	Result    string   `json:"result"`
	Artifacts []Artifact `json:"artifacts"`
	Actions   []Action `json:"actions"`
	URL       string   `json:"url"`
}

// Revision returns the build's recorded commit SHA and the distinct
// branch names associated with it, per spec.md §4.6 step 3.
func (b Build) Revision() (sha string, branches []string) {
	seen := map[string]bool{}
	for _, a := range b.Actions {
		if a.LastBuiltRevision == nil {
			continue
		}
		if sha == "" {
			sha = a.LastBuiltRevision.SHA1
		}
		for _, br := range a.LastBuiltRevision.Branch {
			name := strings.TrimPrefix(br.Name, "origin/")
			if !seen[name] {
				seen[name] = true
				branches = append(branches, name)
			}
		}
	}
	return sha, branches
}

// ArtifactURL returns the absolute download URL for a.
func (b Build) ArtifactURL(a Artifact) string {
	return strings.TrimSuffix(b.URL, "/") + "/artifact/" + a.RelativePath
}

// Job is one Jenkins job. Jobs is non-empty for multi-branch pipelines,
// one child per branch.
type Job struct {
	Name string `json:"name"`
	Jobs []Job  `json:"jobs,omitempty"`
}

// Client is the capability surface deployment.Deployment.CheckCI needs.
type Client interface {
	// GetJob fetches a job (and, for multi-branch pipelines, its child
	// jobs) by name.
	GetJob(ctx context.Context, name string) (Job, error)
	// GetLastBranchBuild fetches the most recent build of job for
	// branchKey (a branch name or "origin/"+branch), and whether one
	// was found at all.
	GetLastBranchBuild(ctx context.Context, job Job, branchKey string) (Build, bool, error)
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

// jenkinsClient is the default Client, a thin net/http wrapper.
type jenkinsClient struct {
	baseURL string
	user    string
	token   string
	http    *http.Client
	log     *logrus.Logger
}

// NewJenkinsClient constructs the default Client. config recognizes
// "base_url", "user", "token".
func NewJenkinsClient(config map[string]any) (Client, error) {
	base, _ := config["base_url"].(string)
	if base == "" {
		return nil, fmt.Errorf("ci: base_url required")
	}
	user, _ := config["user"].(string)
	token, _ := config["token"].(string)

	return &jenkinsClient{
		baseURL: strings.TrimSuffix(base, "/"),
		user:    user,
		token:   token,
		http:    http.DefaultClient,
		log:     logrus.StandardLogger(),
	}, nil
}

func init() {
	_ = RegisterClient("jenkins", NewJenkinsClient)
}

func (c *jenkinsClient) GetJob(ctx context.Context, name string) (Job, error) {
	var job Job
	if err := c.getJSON(ctx, fmt.Sprintf("/job/%s/api/json", url.PathEscape(name)), &job); err != nil {
		return Job{}, fmt.Errorf("ci: fetching job %s: %w", name, err)
	}
	if job.Name == "" {
		job.Name = name
	}
	return job, nil
}

func (c *jenkinsClient) GetLastBranchBuild(ctx context.Context, job Job, branchKey string) (Build, bool, error) {
	var payload struct {
		Builds []Build `json:"builds"`
	}
	path := fmt.Sprintf("/job/%s/api/json?tree=builds[number,building,result,url,artifacts[relativePath],actions[lastBuiltRevision[SHA1,branch[name]]]]", url.PathEscape(job.Name))
	if err := c.getJSON(ctx, path, &payload); err != nil {
		return Build{}, false, fmt.Errorf("ci: fetching builds for %s: %w", job.Name, err)
	}

	wantBranch := strings.TrimPrefix(branchKey, "origin/")
	for _, b := range payload.Builds {
		_, branches := b.Revision()
		if len(branches) == 0 {
			// No revision metadata recorded at all: treat the most
			// recent build as this branch's build, matching Jenkins
			// jobs that don't carry branch actions.
			return b, true, nil
		}
		for _, br := range branches {
			if br == wantBranch {
				return b, true, nil
			}
		}
	}
	return Build{}, false, nil
}

func (c *jenkinsClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.token)
	}

	c.log.WithField("url", req.URL.String()).Debug("ci: request")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
