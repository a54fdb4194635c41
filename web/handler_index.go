package web

import (
	"net/http"

	"github.com/deployhub/deployhub-core/webui"
)

// handleIndex renders the login form, carrying a post-login redirect
// target (page, params) through hidden fields, per spec.md §4.8.
func (c *Controller) handleIndex(w http.ResponseWriter, r *http.Request, path string) bool {
	if path != "/index" {
		return false
	}
	if r.Method != http.MethodGet {
		return true
	}

	page := r.URL.Query().Get("page")
	if !pages[page] {
		http.Error(w, "unknown page", http.StatusBadRequest)
		return true
	}

	params := map[string][]string{}
	for k, v := range r.URL.Query() {
		if k == "page" {
			continue
		}
		params[k] = v
	}

	if err := c.templates.Index(w, webui.IndexData{Page: page, Params: params}); err != nil {
		c.logger.WithError(err).Error("rendering index")
	}
	return true
}

func indexDataWithError(page string, params map[string][]string, message string) webui.IndexData {
	return webui.IndexData{Page: page, Params: params, Error: message}
}

// handleCSS serves the embedded stylesheet with a strong ETag and
// conditional-GET support, per spec.md §6.3.
func (c *Controller) handleCSS(w http.ResponseWriter, r *http.Request, path string) bool {
	if path != "/css" {
		return false
	}
	if r.Method != http.MethodGet {
		return true
	}

	w.Header().Set("ETag", c.cssETag)
	if r.Header.Get("If-None-Match") == c.cssETag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}

	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write(webui.CSS)
	return true
}
