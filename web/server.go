// Package web is the Controller: the session-authenticated HTML surface
// described by spec.md §4.8/§6.3, dispatching GET/POST routes to
// deployment-set, key-generation, and task-supervisor operations and
// rendering the result through package webui.
package web

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/deployhub/deployhub-core/auth"
	"github.com/deployhub/deployhub-core/store"
	"github.com/deployhub/deployhub-core/task"
	"github.com/deployhub/deployhub-core/webui"
	"github.com/deployhub/deployhub-core/websession"
)

// pages are the valid "page" identifiers index/login carry through to a
// post-login redirect target; every one names a route below.
var pages = map[string]bool{"": true, "list": true, "create": true, "edit": true, "deploy": true}

// Config bundles everything the Controller needs, assembled once at
// startup by cmd/deployhubd.
type Config struct {
	MountPrefix   string
	DeployDataDir string
	StorePath     string
	Templates     *webui.Templates
	Sessions      *websession.Store
	Auth          auth.Checker
	Deployments   *store.DeploymentSet
	Supervisor    *task.Supervisor
	Deps          task.Dependencies
	Logger        *logrus.Logger
	serve         func(*http.Server) error // optional override for tests
}

// Controller routes requests to deployment-set, key-generation, and
// task-supervisor operations and renders the result as HTML.
type Controller struct {
	mountPrefix   string
	deployDataDir string
	storePath     string
	templates     *webui.Templates
	sessions      *websession.Store
	checker       auth.Checker
	deployments   *store.DeploymentSet
	supervisor    *task.Supervisor
	deps          task.Dependencies
	logger        *logrus.Logger
	cssETag       string
	serve         func(*http.Server) error
}

// New builds a Controller from cfg.
func New(cfg Config) *Controller {
	mountPrefix := strings.TrimSuffix(cfg.MountPrefix, "/")
	if mountPrefix == "" {
		mountPrefix = "/deploy"
	}

	sum := sha256.Sum256(webui.CSS)

	return &Controller{
		mountPrefix:   mountPrefix,
		deployDataDir: cfg.DeployDataDir,
		storePath:     cfg.StorePath,
		templates:     cfg.Templates,
		sessions:      cfg.Sessions,
		checker:       cfg.Auth,
		deployments:   cfg.Deployments,
		supervisor:    cfg.Supervisor,
		deps:          cfg.Deps,
		logger:        cfg.Logger,
		cssETag:       `"` + hex.EncodeToString(sum[:]) + `"`,
		serve:         cfg.serve,
	}
}

// ServeHTTP implements http.Handler and dispatches to route handlers.
func (c *Controller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, c.mountPrefix)
	if path == "" {
		path = "/"
	}

	switch {
	case c.handleIndex(w, r, path):
	case c.handleCSS(w, r, path):
	case c.handleLogin(w, r, path):
	case c.handleLogout(w, r, path):
	case c.handleList(w, r, path):
	case c.handleCreate(w, r, path):
	case c.handleEdit(w, r, path):
	case c.handleDeploy(w, r, path):
	default:
		http.NotFound(w, r)
	}
}

// ListenAndServe starts the HTTP server at addr.
func (c *Controller) ListenAndServe(addr string) error {
	srv := &http.Server{Addr: addr, Handler: c}

	serve := c.serve
	if serve == nil {
		serve = func(srv *http.Server) error { return srv.ListenAndServe() }
	}
	return serve(srv)
}

// url builds a path under the mount prefix.
func (c *Controller) url(suffix string) string {
	return c.mountPrefix + suffix
}
