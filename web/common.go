package web

import (
	"net/http"
	"net/url"

	"github.com/deployhub/deployhub-core/deployerr"
	"github.com/deployhub/deployhub-core/websession"
)

// requireSession returns the caller's session if authenticated. Otherwise
// it redirects to /index carrying page (the route the caller was denied)
// and params (the original query, so a successful login can return the
// caller to where they meant to go) and returns ok=false; the caller must
// stop handling the request.
func (c *Controller) requireSession(w http.ResponseWriter, r *http.Request, page string) (*websession.Session, bool) {
	sess := c.sessions.Get(r)
	if sess.Authenticated {
		return sess, true
	}

	target := c.url("/index") + "?page=" + url.QueryEscape(page)
	for k, vs := range r.URL.Query() {
		for _, v := range vs {
			target += "&" + url.QueryEscape(k) + "=" + url.QueryEscape(v)
		}
	}
	http.Redirect(w, r, target, http.StatusFound)
	return nil, false
}

// writeDeployErr maps a deployerr.Error to its HTTP response per
// spec.md §7: NotFound->404, BadRequest->400, everything else
// (including Conflict, per spec.md §8 scenario 2) ->500.
func (c *Controller) writeDeployErr(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch deployerr.CodeOf(err) {
	case deployerr.NotFound:
		status = http.StatusNotFound
	case deployerr.BadRequest:
		status = http.StatusBadRequest
	}

	c.logger.WithError(err).WithField("path", r.URL.Path).WithField("status", status).Warn("controller error")
	http.Error(w, err.Error(), status)
}

// badRequest is a convenience wrapper for a missing/invalid parameter.
func badRequest(message string) error {
	return deployerr.New(deployerr.BadRequest, message, nil)
}
