package web

import (
	"net/http"

	"github.com/deployhub/deployhub-core/deployerr"
	"github.com/deployhub/deployhub-core/schema"
	"github.com/deployhub/deployhub-core/webui"
)

// handleDeploy starts a deployment task on POST (subject to the
// supervisor's single-flight admission rule) and renders its progress
// record on GET, per spec.md §4.4/§4.8.
func (c *Controller) handleDeploy(w http.ResponseWriter, r *http.Request, path string) bool {
	if path != "/deploy" {
		return false
	}

	sess, ok := c.requireSession(w, r, "deploy")
	if !ok {
		return true
	}

	switch r.Method {
	case http.MethodGet:
		c.handleDeployGet(w, r)
		return true
	case http.MethodPost:
		c.handleDeployPost(w, r, sess.Username)
		return true
	default:
		return true
	}
}

func (c *Controller) handleDeployGet(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Redirect(w, r, c.url("/list"), http.StatusFound)
		return
	}

	progress, ok := c.supervisor.Progress(name)
	if !ok {
		http.Redirect(w, r, c.url("/list"), http.StatusFound)
		return
	}

	c.renderDeploy(w, name, progress)
}

func (c *Controller) handleDeployPost(w http.ResponseWriter, r *http.Request, actor string) {
	name := r.FormValue("name")
	if name == "" {
		c.writeDeployErr(w, r, badRequest("name is required"))
		return
	}

	d, ok := c.deployments.Get(name)
	if !ok {
		c.writeDeployErr(w, r, deployerr.Newf(deployerr.NotFound, nil, "Deployment '%s' does not exist", name))
		return
	}

	if err := c.supervisor.Start(d, c.deps); err != nil {
		c.writeDeployErr(w, r, err)
		return
	}
	c.logAudit(r, actor, "deploy.started")

	progress, _ := c.supervisor.Progress(name)
	c.renderDeploy(w, name, progress)
}

func (c *Controller) renderDeploy(w http.ResponseWriter, name string, progress schema.DeployProgress) {
	err := c.templates.Deploy(w, webui.DeployData{
		Name: name,
		Progress: webui.DeployProgress{
			State:   string(progress.State),
			Message: progress.Message,
		},
	})
	if err != nil {
		c.logger.WithError(err).Error("rendering deploy progress")
	}
}
