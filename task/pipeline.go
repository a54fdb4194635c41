// Package task implements the single-threaded deploy pipeline (spec.md
// §4.5) and the per-name supervisor that admits, tracks, and cancels it
// (spec.md §4.4). Progress flows from a running DeployTask to whatever
// ProgressSink it was handed — in production that's always the
// Supervisor, but tests can substitute a recording fake, the way
// spec.md §9's "event-bus progress publishing" redesign note asks for.
package task

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"

	"github.com/deployhub/deployhub-core/ci"
	"github.com/deployhub/deployhub-core/dashboard"
	"github.com/deployhub/deployhub-core/deployerr"
	"github.com/deployhub/deployhub-core/deployment"
	"github.com/deployhub/deployhub-core/hostservice"
	"github.com/deployhub/deployhub-core/schema"
	"github.com/deployhub/deployhub-core/scm"
)

// ProgressSink receives progress events published by a running
// DeployTask. The Supervisor is the only production implementation.
type ProgressSink interface {
	Publish(name string, progress schema.DeployProgress)
}

// Dependencies bundles the external collaborators one DeployTask needs.
// A single set is constructed at process startup and shared by every
// task the Supervisor admits.
type Dependencies struct {
	SCM        scm.Client
	CI         ci.Client
	Dashboard  dashboard.Client
	Restarter  hostservice.Restarter
	HTTPClient *http.Client
}

// composeFile is one compose document the dashboard step uploads.
// bigboat_compose names the directory inside the working copy; these
// are the two fixed filenames within it, grounded on the original
// Deploy_Task.FILES table (docker-compose.yml/dockerCompose,
// bigboat-compose.yml/bigboatCompose). The app name/version are parsed
// from bigboatCompose, not dockerCompose.
type composeFile struct {
	filename    string
	apiFilename string
}

var composeFiles = []composeFile{
	{filename: "docker-compose.yml", apiFilename: "dockerCompose"},
	{filename: "bigboat-compose.yml", apiFilename: "bigboatCompose"},
}

const bigboatComposeAPIFilename = "bigboatCompose"

// DeployTask runs the ordered pipeline of spec.md §4.5 for one snapshot
// of a Deployment. It is created fresh for each POST-deploy and dropped
// after its terminal publish; it never mutates the snapshot it holds.
type DeployTask struct {
	name string
	dep  deployment.Deployment
	deps Dependencies
	sink ProgressSink
}

// New constructs a DeployTask bound to one deployment snapshot.
func New(d schema.Deployment, deps Dependencies, sink ProgressSink) *DeployTask {
	return &DeployTask{name: d.Name, dep: deployment.New(d), deps: deps, sink: sink}
}

// Run executes the pipeline to completion, cancellation, or failure. It
// never returns an error: every terminal outcome is communicated via the
// sink, per spec.md §4.5 ("on any ... publishes error ... and
// terminates" / "on cooperative stop, terminates silently").
func (t *DeployTask) Run(ctx context.Context) {
	t.publish(schema.StateStarting, "Deployment started")

	if err := t.run(ctx); err != nil {
		if deployerr.CodeOf(err) == deployerr.Interrupted {
			return
		}
		t.publish(schema.StateError, err.Error())
		return
	}

	t.publish(schema.StateSuccess, "Finished deployment")
}

func (t *DeployTask) run(ctx context.Context) error {
	var build *ci.Build

	if t.dep.JenkinsJob != "" {
		if err := t.checkStop(ctx); err != nil {
			return err
		}
		t.publish(schema.StateProgress, "Checking CI build state")
		b, err := t.dep.CheckCI(ctx, t.deps.CI, t.remoteHead)
		if err != nil {
			return err
		}
		build = &b
	}

	if err := t.checkStop(ctx); err != nil {
		return err
	}
	t.publish(schema.StateProgress, "Updating source repository")
	src, err := t.dep.Source()
	if err != nil {
		return err
	}
	wc, err := t.deps.SCM.Refresh(ctx, src, t.dep.GitPath, t.dep.GitBranch)
	if err != nil {
		return deployerr.New(deployerr.SourceUnavailable, "could not refresh working copy", err)
	}

	if t.dep.Artifacts && build != nil {
		if err := t.checkStop(ctx); err != nil {
			return err
		}
		if err := t.copyArtifacts(ctx, *build); err != nil {
			return err
		}
	}

	if err := t.checkStop(ctx); err != nil {
		return err
	}
	t.publish(schema.StateProgress, "Writing secret files")
	if err := t.writeSecretFiles(); err != nil {
		return err
	}

	if t.dep.Script != "" {
		if err := t.checkStop(ctx); err != nil {
			return err
		}
		if err := t.runScript(ctx); err != nil {
			return err
		}
	}

	if err := t.checkStop(ctx); err != nil {
		return err
	}
	if err := t.restartServices(ctx); err != nil {
		return err
	}

	if t.dep.BigboatURL != "" {
		if err := t.checkStop(ctx); err != nil {
			return err
		}
		if err := t.updateDashboard(ctx, wc); err != nil {
			return err
		}
	}

	return nil
}

func (t *DeployTask) checkStop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return deployerr.New(deployerr.Interrupted, "stopped", ctx.Err())
	default:
		return nil
	}
}

func (t *DeployTask) remoteHead(ctx context.Context, branch string) (string, error) {
	src, err := t.dep.Source()
	if err != nil {
		return "", err
	}
	return t.deps.SCM.RemoteHead(ctx, src, branch)
}

func (t *DeployTask) copyArtifacts(ctx context.Context, build ci.Build) error {
	if len(build.Artifacts) == 0 {
		return deployerr.New(deployerr.BadBuild, "build declares no artifacts", nil)
	}

	t.publish(schema.StateProgress, "Copying build artifacts")
	client := t.deps.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	for _, a := range build.Artifacts {
		dest := filepath.Join(t.dep.GitPath, a.RelativePath)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return deployerr.New(deployerr.BadBuild, fmt.Sprintf("could not create directory for artifact %s", a.RelativePath), err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, build.ArtifactURL(a), nil)
		if err != nil {
			return deployerr.New(deployerr.BadBuild, fmt.Sprintf("could not request artifact %s", a.RelativePath), err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return deployerr.New(deployerr.BadBuild, fmt.Sprintf("could not download artifact %s", a.RelativePath), err)
		}
		err = writeResponseBody(resp, dest)
		if err != nil {
			return deployerr.New(deployerr.BadBuild, fmt.Sprintf("could not write artifact %s", a.RelativePath), err)
		}
	}
	return nil
}

func writeResponseBody(resp *http.Response, dest string) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, resp.Body)
	return err
}

func (t *DeployTask) writeSecretFiles() error {
	for _, secret := range t.dep.SecretFiles {
		if secret.Name == "" {
			continue
		}
		dest := filepath.Join(t.dep.GitPath, secret.Name)
		if err := os.WriteFile(dest, []byte(secret.Content), 0o600); err != nil {
			return deployerr.New(deployerr.SecretWriteFailed, fmt.Sprintf("could not write secret file %s", secret.Name), err)
		}
	}
	return nil
}

func (t *DeployTask) runScript(ctx context.Context) error {
	t.publish(schema.StateProgress, fmt.Sprintf("Running script %s", t.dep.Script))

	args, err := shlex.Split(t.dep.Script)
	if err != nil {
		return deployerr.New(deployerr.ScriptFailed, fmt.Sprintf("could not parse script %s", t.dep.Script), err)
	}
	if len(args) == 0 {
		return nil
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = t.dep.GitPath
	cmd.Env = append(os.Environ(), "DEPLOYMENT_NAME="+t.name)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return deployerr.New(deployerr.ScriptFailed, fmt.Sprintf("could not run script %s: %s", t.dep.Script, out), err)
	}
	return nil
}

func (t *DeployTask) restartServices(ctx context.Context) error {
	for _, service := range t.dep.Services {
		if service == "" {
			continue
		}
		if err := t.checkStop(ctx); err != nil {
			return err
		}
		t.publish(schema.StateProgress, fmt.Sprintf("Restarting service %s", service))
		if err := t.deps.Restarter.Restart(ctx, service); err != nil {
			return deployerr.New(deployerr.ServiceRestartFailed, fmt.Sprintf("could not restart service %s", service), err)
		}
	}
	return nil
}

func (t *DeployTask) updateDashboard(ctx context.Context, wc scm.WorkingCopy) error {
	if t.dep.BigboatKey == "" {
		return deployerr.New(deployerr.Misconfigured, "bigboat_key is required to update the dashboard", nil)
	}

	dir := strings.TrimPrefix(t.dep.BigboatCompose, "./")
	var paths []string
	contents := make(map[string][]byte, len(composeFiles))
	for _, cf := range composeFiles {
		rel := strings.TrimPrefix(filepath.Join(dir, cf.filename), "./")
		paths = append(paths, rel)
		body, err := os.ReadFile(filepath.Join(t.dep.GitPath, rel))
		if err != nil {
			return deployerr.New(deployerr.DashboardUpdateFailed, fmt.Sprintf("could not read compose file %s", rel), err)
		}
		contents[cf.apiFilename] = body
	}

	changed, err := t.deps.SCM.Diff(t.dep.GitPath, wc.PrevHead, wc.Head, paths)
	if err != nil {
		return deployerr.New(deployerr.DashboardUpdateFailed, "could not diff compose files", err)
	}
	if !changed {
		t.publish(schema.StateProgress, "BigBoat compose files were unchanged, skipping")
		return nil
	}

	t.publish(schema.StateProgress, "Updating BigBoat compose files")

	var compose struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	}
	if err := yaml.Unmarshal(contents[bigboatComposeAPIFilename], &compose); err != nil {
		return deployerr.New(deployerr.DashboardUpdateFailed, "could not parse compose file", err)
	}

	exists, err := t.deps.Dashboard.GetApp(ctx, t.dep.BigboatURL, t.dep.BigboatKey, compose.Name)
	if err != nil {
		return deployerr.New(deployerr.DashboardUpdateFailed, "could not query dashboard application", err)
	}
	if !exists {
		if err := t.deps.Dashboard.CreateApp(ctx, t.dep.BigboatURL, t.dep.BigboatKey, compose.Name); err != nil {
			return deployerr.New(deployerr.DashboardUpdateFailed, "cannot register application", err)
		}
	}

	for _, cf := range composeFiles {
		if err := t.deps.Dashboard.UpdateCompose(ctx, t.dep.BigboatURL, t.dep.BigboatKey, compose.Name, cf.apiFilename, contents[cf.apiFilename]); err != nil {
			return deployerr.New(deployerr.DashboardUpdateFailed, "cannot update compose file", err)
		}
	}

	t.publish(schema.StateProgress, "Updating BigBoat instances")
	if err := t.deps.Dashboard.UpdateInstance(ctx, t.dep.BigboatURL, t.dep.BigboatKey, compose.Name, compose.Name, compose.Version); err != nil {
		return deployerr.New(deployerr.DashboardUpdateFailed, "could not update dashboard instance", err)
	}
	return nil
}

func (t *DeployTask) publish(state schema.ProgressState, message string) {
	t.sink.Publish(t.name, schema.DeployProgress{State: state, Message: message})
}
