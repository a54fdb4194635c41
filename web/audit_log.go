package web

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// logAudit records one mutating Controller action. Action is a
// dot-separated string, e.g. "deployment.created", "deploy.started".
func (c *Controller) logAudit(r *http.Request, actor, action string) {
	c.logger.WithFields(logrus.Fields{
		"action":      action,
		"actor":       actor,
		"remote_addr": r.RemoteAddr,
	}).Info("audit_log")
}
