package web

import (
	"net/http"
	"sort"

	"github.com/deployhub/deployhub-core/deployment"
	"github.com/deployhub/deployhub-core/webui"
)

// handleList renders the sorted deployment list, each entry showing
// up-to-date status linked to a tree/compare URL when available, per
// spec.md §4.8.
func (c *Controller) handleList(w http.ResponseWriter, r *http.Request, path string) bool {
	if path != "/list" {
		return false
	}
	if r.Method != http.MethodGet {
		return true
	}
	if _, ok := c.requireSession(w, r, "list"); !ok {
		return true
	}

	snapshot := c.deployments.Snapshot()
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Name < snapshot[j].Name })

	ctx := r.Context()
	entries := make([]webui.ListEntry, 0, len(snapshot))
	for _, d := range snapshot {
		dep := deployment.New(d)
		entry := webui.ListEntry{Name: d.Name, Label: d.Label(), UpToDate: dep.IsUpToDate(ctx, c.deps.SCM)}

		if _, head, err := dep.LatestLocalVersion(c.deps.SCM); err == nil && head != "" {
			if url, ok := dep.TreeURL(c.deps.SCM, head); ok {
				entry.TreeURL = url
			}
			if !entry.UpToDate {
				if src, err := dep.Source(); err == nil {
					if remoteHead, err := c.deps.SCM.RemoteHead(ctx, src, d.GitBranch); err == nil {
						if url, ok := dep.CompareURL(c.deps.SCM, head, remoteHead); ok {
							entry.CompareURL = url
						}
					}
				}
			}
		}

		entries = append(entries, entry)
	}

	if err := c.templates.List(w, webui.ListData{Entries: entries}); err != nil {
		c.logger.WithError(err).Error("rendering list")
	}
	return true
}
