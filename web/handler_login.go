package web

import (
	"net/http"
	"net/url"
)

// handleLogin validates credentials and, on success, starts a session
// and 302-redirects to the page/params carried through the login form,
// per spec.md §4.8/§6.3.
func (c *Controller) handleLogin(w http.ResponseWriter, r *http.Request, path string) bool {
	if path != "/login" {
		return false
	}
	if r.Method != http.MethodPost {
		return true
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return true
	}

	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		http.Error(w, "username and password required", http.StatusBadRequest)
		return true
	}

	page := r.PostForm.Get("page")
	if !pages[page] {
		http.Error(w, "unknown page", http.StatusBadRequest)
		return true
	}

	ok, err := c.checker.Check(r.Context(), username, password)
	if err != nil {
		c.logger.WithError(err).Error("checking credentials")
		http.Error(w, "authentication unavailable", http.StatusInternalServerError)
		return true
	}
	if !ok {
		params := map[string][]string{}
		for k, v := range r.PostForm {
			if k == "username" || k == "password" || k == "page" {
				continue
			}
			params[k] = v
		}
		w.WriteHeader(http.StatusUnauthorized)
		_ = c.templates.Index(w, indexDataWithError(page, params, "invalid username or password"))
		return true
	}

	sess := c.sessions.Get(r)
	if err := c.sessions.Login(w, r, sess, username); err != nil {
		c.logger.WithError(err).Error("starting session")
		http.Error(w, "could not start session", http.StatusInternalServerError)
		return true
	}
	c.logAudit(r, username, "session.login")

	target := c.url("/list")
	if page != "" {
		target = c.url("/" + page)
	}
	query := url.Values{}
	for k, v := range r.PostForm {
		if k == "username" || k == "password" || k == "page" {
			continue
		}
		for _, vv := range v {
			query.Add(k, vv)
		}
	}
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}
	http.Redirect(w, r, target, http.StatusFound)
	return true
}

// handleLogout clears the session and redirects to /index, per
// spec.md §4.8.
func (c *Controller) handleLogout(w http.ResponseWriter, r *http.Request, path string) bool {
	if path != "/logout" {
		return false
	}
	if r.Method != http.MethodGet {
		return true
	}

	sess := c.sessions.Get(r)
	if err := c.sessions.Logout(w, r, sess); err != nil {
		c.logger.WithError(err).Error("clearing session")
	}
	http.Redirect(w, r, c.url("/index"), http.StatusFound)
	return true
}
