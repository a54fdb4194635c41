// Package deployment implements the read-only behaviors spec.md §4.3
// describes for one deployment's configuration: deriving a source
// descriptor, computing freshness against upstream, and the CI freshness
// check of §4.6. The mutable set of deployments and their JSON
// persistence live in package store; the pipeline that acts on a
// Deployment lives in package task.
package deployment

import (
	"context"
	"fmt"
	"strings"

	"github.com/deployhub/deployhub-core/ci"
	"github.com/deployhub/deployhub-core/deployerr"
	"github.com/deployhub/deployhub-core/schema"
	"github.com/deployhub/deployhub-core/scm"
)

// Deployment wraps schema.Deployment with the read-only query behaviors
// spec.md §4.3 describes. It never mutates its embedded fields; a running
// task operates on its own snapshot copy (spec.md §3's lifecycle rule).
type Deployment struct {
	schema.Deployment
}

// New wraps a schema.Deployment.
func New(d schema.Deployment) Deployment {
	return Deployment{Deployment: d}
}

// Source builds the abstract source descriptor consumed by an scm.Client.
// Fails with Misconfigured when GitURL is absent.
func (d Deployment) Source() (scm.Source, error) {
	if d.GitURL == "" {
		return scm.Source{}, deployerr.New(deployerr.Misconfigured, "git_url is required", nil)
	}
	return scm.Source{URL: d.GitURL, Name: d.Name, DeployKey: d.DeployKey}, nil
}

// LatestLocalVersion returns the source descriptor and the working copy's
// current HEAD. Per spec.md §4.3, neither case below is an error: a
// missing, empty or unreadable working copy yields (source, "", nil), and
// Misconfigured yields (zero Source, "", nil).
func (d Deployment) LatestLocalVersion(client scm.Client) (scm.Source, string, error) {
	src, err := d.Source()
	if err != nil {
		var de deployerr.Error
		if asDeployErr(err, &de) && de.Code == deployerr.Misconfigured {
			return scm.Source{}, "", nil
		}
		return scm.Source{}, "", err
	}

	if d.GitPath == "" {
		return src, "", nil
	}
	empty, err := client.IsEmpty(d.GitPath)
	if err != nil || empty {
		return src, "", nil
	}

	head, err := client.Head(d.GitPath)
	if err != nil {
		return src, "", nil
	}
	return src, head, nil
}

// IsUpToDate reports whether the working copy's HEAD equals upstream HEAD
// of GitBranch. Any scm error is treated as "not up to date", per
// spec.md §4.3 and §7 ("soft failure").
func (d Deployment) IsUpToDate(ctx context.Context, client scm.Client) bool {
	src, head, err := d.LatestLocalVersion(client)
	if err != nil || head == "" {
		return false
	}

	remoteHead, err := client.RemoteHead(ctx, src, d.GitBranch)
	if err != nil {
		return false
	}
	return head == remoteHead
}

// CompareURL returns a human-readable diff URL between two revisions when
// the scm client's host supports it.
func (d Deployment) CompareURL(client scm.Client, prevHead, head string) (string, bool) {
	src, err := d.Source()
	if err != nil {
		return "", false
	}
	return client.CompareURL(src, prevHead, head)
}

// TreeURL returns a human-readable browse URL for a revision when the scm
// client's host supports it.
func (d Deployment) TreeURL(client scm.Client, head string) (string, bool) {
	src, err := d.Source()
	if err != nil {
		return "", false
	}
	return client.TreeURL(src, head)
}

// Branches lists upstream branch names, or empty on any failure.
func (d Deployment) Branches(ctx context.Context, client scm.Client) []string {
	src, err := d.Source()
	if err != nil {
		return nil
	}
	branches, err := client.Branches(ctx, src)
	if err != nil {
		return nil
	}
	return branches
}

// CheckCI implements the freshness check of spec.md §4.6. remoteHead is
// called lazily, only when JenkinsGit requires a revision comparison.
func (d Deployment) CheckCI(ctx context.Context, client ci.Client, remoteHead func(ctx context.Context, branch string) (string, error)) (ci.Build, error) {
	job, err := client.GetJob(ctx, d.JenkinsJob)
	if err != nil {
		return ci.Build{}, deployerr.New(deployerr.BadBuild, fmt.Sprintf("could not load job %s", d.JenkinsJob), err)
	}

	if len(job.Jobs) > 0 {
		var child *ci.Job
		for i := range job.Jobs {
			if job.Jobs[i].Name == d.GitBranch {
				child = &job.Jobs[i]
				break
			}
		}
		if child == nil {
			return ci.Build{}, deployerr.New(deployerr.BadBuild, "branch build could not be found", nil)
		}
		job = *child
	}

	var (
		b     ci.Build
		found bool
	)
	for _, key := range []string{d.GitBranch, "origin/" + d.GitBranch} {
		candidate, ok, err := client.GetLastBranchBuild(ctx, job, key)
		if err != nil {
			return ci.Build{}, deployerr.New(deployerr.BadBuild, fmt.Sprintf("could not load builds for %s", key), err)
		}
		if ok {
			b = candidate
			found = true
			break
		}
	}
	if !found {
		return ci.Build{}, deployerr.New(deployerr.BadBuild, "branch build could not be found", nil)
	}

	_, branches := b.Revision()
	if len(branches) > 1 {
		return ci.Build{}, deployerr.New(deployerr.BadBuild, "caused by merge request", nil)
	}

	if d.JenkinsGitEnabled() {
		sha, _ := b.Revision()
		head, err := remoteHead(ctx, d.GitBranch)
		if err != nil {
			return ci.Build{}, deployerr.New(deployerr.BadBuild, "could not determine upstream revision", err)
		}
		if sha != "" && sha != head {
			return ci.Build{}, deployerr.New(deployerr.BadBuild, "stale compared to repository", nil)
		}
	}

	if b.Building {
		return ci.Build{}, deployerr.New(deployerr.BadBuild, "Build is not complete", nil)
	}

	if !containsResult(d.JenkinsStates, b.Result) {
		return ci.Build{}, deployerr.Newf(deployerr.BadBuild, nil, "build result is not %s but %s", strings.Join(d.JenkinsStates, "/"), b.Result)
	}

	return b, nil
}

func containsResult(accepted []string, result string) bool {
	for _, a := range accepted {
		if a == result {
			return true
		}
	}
	return false
}

func asDeployErr(err error, out *deployerr.Error) bool {
	if de, ok := err.(deployerr.Error); ok {
		*out = de
		return true
	}
	return false
}
