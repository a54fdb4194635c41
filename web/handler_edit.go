package web

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/deployhub/deployhub-core/deployerr"
	"github.com/deployhub/deployhub-core/keygen"
	"github.com/deployhub/deployhub-core/schema"
	"github.com/deployhub/deployhub-core/store"
	"github.com/deployhub/deployhub-core/webui"
)

// handleEdit serves the prefilled edit form on GET and, on POST, renames
// the deployment, keeps or rotates its deploy key, reconciles secret
// files, and persists the result, per spec.md §4.8.
func (c *Controller) handleEdit(w http.ResponseWriter, r *http.Request, path string) bool {
	if path != "/edit" {
		return false
	}

	sess, ok := c.requireSession(w, r, "edit")
	if !ok {
		return true
	}

	switch r.Method {
	case http.MethodGet:
		c.handleEditGet(w, r)
		return true
	case http.MethodPost:
		c.handleEditPost(w, r, sess.Username)
		return true
	default:
		return true
	}
}

func (c *Controller) handleEditGet(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Redirect(w, r, c.url("/list"), http.StatusFound)
		return
	}

	d, ok := c.deployments.Get(name)
	if !ok {
		c.writeDeployErr(w, r, deployerr.Newf(deployerr.NotFound, nil, "Deployment '%s' does not exist", name))
		return
	}

	err := c.templates.Edit(w, webui.FormData{
		Heading:               "Edit " + d.Label(),
		Action:                c.url("/edit"),
		OldName:               d.Name,
		ShowDeployKeyCheckbox: true,
		Deployment:            formDeploymentOf(d),
		JenkinsStatesCSV:      joinCSV(d.JenkinsStates),
		ServicesCSV:           joinCSV(d.Services),
		SecretNamesSSV:        joinSSV(d.SecretFiles.Names()),
	})
	if err != nil {
		c.logger.WithError(err).Error("rendering edit form")
	}
}

func (c *Controller) handleEditPost(w http.ResponseWriter, r *http.Request, actor string) {
	if err := r.ParseForm(); err != nil {
		c.writeDeployErr(w, r, badRequest("malformed form"))
		return
	}

	oldName := r.PostForm.Get("old_name")
	name := r.PostForm.Get("name")
	if oldName == "" || name == "" {
		c.writeDeployErr(w, r, badRequest("old_name and name are required"))
		return
	}

	old, ok := c.deployments.Get(oldName)
	if !ok {
		c.writeDeployErr(w, r, deployerr.Newf(deployerr.NotFound, nil, "Deployment '%s' does not exist", oldName))
		return
	}
	c.deployments.Discard(oldName)

	keepKey := schema.CoerceBool(r.PostForm.Get("deploy_key"))
	var (
		keyPath    string
		publicKey  string
		keyMessage string
	)
	if keepKey {
		keyPath = old.DeployKey
		keyMessage = "using original deploy key"
		if pub, err := keygen.PublicKey(keyPath); err == nil {
			publicKey = pub
		}
	} else {
		if old.DeployKey != "" {
			if err := keygen.Remove(old.DeployKey); err != nil {
				c.writeDeployErr(w, r, err)
				return
			}
		}
		keyPath = c.keyPath(name)
		kp, err := keygen.Generate(keyPath, fmt.Sprintf("deploy key for %s", name))
		if err != nil {
			c.writeDeployErr(w, r, err)
			return
		}
		publicKey = kp.PublicKey
		keyMessage = "new deploy key generated for " + name
	}

	newNames := schema.CoerceNames(r.PostForm.Get("secret_files_names"))
	secretFiles := reconcileSecretFiles(old.GitPath, newNames, old.SecretFiles)

	d := schema.BuildFromForm(schema.FormValues(r.PostForm), name, keyPath)
	d.SecretFiles = secretFiles
	d = d.WithDefaults()

	c.deployments.Add(d)
	if err := store.Write(c.storePath, c.deployments); err != nil {
		c.writeDeployErr(w, r, err)
		return
	}
	c.logAudit(r, actor, "deployment.edited")

	err := c.templates.Edit(w, webui.FormData{
		Heading:               "Edit " + d.Label(),
		Action:                c.url("/edit"),
		OldName:               d.Name,
		ShowDeployKeyCheckbox: true,
		Deployment:            formDeploymentOf(d),
		JenkinsStatesCSV:      joinCSV(d.JenkinsStates),
		ServicesCSV:           joinCSV(d.Services),
		SecretNamesSSV:        joinSSV(d.SecretFiles.Names()),
		NewPublicKey:          publicKey,
		DeployKeyMessage:      keyMessage,
	})
	if err != nil {
		c.logger.WithError(err).Error("rendering edit result")
	}
}

// reconcileSecretFiles implements spec.md §4.8's secret-file
// reconciliation: positions common to old and new carry their content
// forward, new positions start empty, and removed positions have their
// physical file deleted from the working copy (only when the name list
// actually changed).
func reconcileSecretFiles(gitPath string, newNames []string, old schema.SecretFiles) schema.SecretFiles {
	oldNames := old.Names()
	if !namesEqual(newNames, oldNames) {
		for _, n := range oldNames {
			if n == "" || gitPath == "" {
				continue
			}
			_ = os.Remove(filepath.Join(gitPath, n))
		}
	}

	out := make(schema.SecretFiles, 0, len(newNames))
	for i, n := range newNames {
		if n == "" {
			continue
		}
		content := ""
		if i < len(old) {
			content = old[i].Content
		}
		out = append(out, schema.SecretFile{Name: n, Content: content})
	}
	return out
}

func namesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
