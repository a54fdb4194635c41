package web

import (
	"fmt"
	"net/http"

	"github.com/deployhub/deployhub-core/deployerr"
	"github.com/deployhub/deployhub-core/keygen"
	"github.com/deployhub/deployhub-core/schema"
	"github.com/deployhub/deployhub-core/store"
	"github.com/deployhub/deployhub-core/webui"
)

// handleCreate serves the empty creation form on GET and, on POST,
// validates the name is free, generates a fresh deploy key, coerces the
// submitted fields, and persists the new deployment, per spec.md §4.8.
func (c *Controller) handleCreate(w http.ResponseWriter, r *http.Request, path string) bool {
	if path != "/create" {
		return false
	}

	sess, ok := c.requireSession(w, r, "create")
	if !ok {
		return true
	}

	switch r.Method {
	case http.MethodGet:
		defaults := schema.Deployment{}.WithDefaults()
		err := c.templates.Create(w, webui.FormData{
			Heading:          "New deployment",
			Action:           c.url("/create"),
			Deployment:       formDeploymentOf(defaults),
			JenkinsStatesCSV: joinCSV(defaults.JenkinsStates),
			ServicesCSV:      joinCSV(defaults.Services),
		})
		if err != nil {
			c.logger.WithError(err).Error("rendering create form")
		}
		return true
	case http.MethodPost:
		c.handleCreatePost(w, r, sess.Username)
		return true
	default:
		return true
	}
}

func (c *Controller) handleCreatePost(w http.ResponseWriter, r *http.Request, actor string) {
	if err := r.ParseForm(); err != nil {
		c.writeDeployErr(w, r, badRequest("malformed form"))
		return
	}

	name := r.PostForm.Get("name")
	if name == "" {
		c.writeDeployErr(w, r, badRequest("name is required"))
		return
	}
	if c.deployments.Contains(name) {
		c.writeDeployErr(w, r, deployerr.Newf(deployerr.Conflict, nil, "Deployment '%s' already exists", name))
		return
	}

	keyPath := c.keyPath(name)
	kp, err := keygen.Generate(keyPath, fmt.Sprintf("deploy key for %s", name))
	if err != nil {
		c.writeDeployErr(w, r, err)
		return
	}

	d := schema.BuildFromForm(schema.FormValues(r.PostForm), name, keyPath).WithDefaults()
	c.deployments.Add(d)
	if err := store.Write(c.storePath, c.deployments); err != nil {
		c.writeDeployErr(w, r, err)
		return
	}
	c.logAudit(r, actor, "deployment.created")

	err = c.templates.Create(w, webui.FormData{
		Heading:          "New deployment",
		Action:           c.url("/create"),
		Deployment:       formDeploymentOf(d),
		JenkinsStatesCSV: joinCSV(d.JenkinsStates),
		ServicesCSV:      joinCSV(d.Services),
		SecretNamesSSV:   joinSSV(d.SecretFiles.Names()),
		NewPublicKey:     kp.PublicKey,
		DeployKeyMessage: "new deploy key generated for " + name,
	})
	if err != nil {
		c.logger.WithError(err).Error("rendering create result")
	}
}

func (c *Controller) keyPath(name string) string {
	return c.deployDataDir + "/key-" + name
}

func formDeploymentOf(d schema.Deployment) webui.FormDeployment {
	return webui.FormDeployment{
		Name:           d.Name,
		DisplayName:    d.DisplayName,
		GitURL:         d.GitURL,
		GitPath:        d.GitPath,
		GitBranch:      d.GitBranch,
		JenkinsJob:     d.JenkinsJob,
		JenkinsGit:     d.JenkinsGitEnabled(),
		Artifacts:      d.Artifacts,
		Script:         d.Script,
		BigboatURL:     d.BigboatURL,
		BigboatKey:     d.BigboatKey,
		BigboatCompose: d.BigboatCompose,
	}
}

func joinCSV(items []string) string {
	return joinSep(items, ",")
}

func joinSSV(items []string) string {
	return joinSep(items, " ")
}

func joinSep(items []string, sep string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += sep
		}
		out += item
	}
	return out
}
