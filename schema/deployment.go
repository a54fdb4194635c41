// Package schema defines the wire/storage shape of a deployment and the
// declarative field list that drives persistence defaults and form input
// coercion from one source of truth. The HTML form itself is written out
// by hand in package webui and does not read the field list.
package schema

// Deployment is the normalized, persisted configuration for one named
// deployment. All fields are optional except Name.
type Deployment struct {
	// Name is the unique, non-empty identifier and the set key.
	Name string `json:"name"`

	// DisplayName is an optional human label shown in /list distinct
	// from Name; defaults to Name when empty.
	DisplayName string `json:"display_name,omitempty"`

	// GitURL is the upstream source URL.
	GitURL string `json:"git_url,omitempty"`
	// GitPath is the local working-copy path.
	GitPath string `json:"git_path,omitempty"`
	// GitBranch is the branch to track; defaults to "master".
	GitBranch string `json:"git_branch"`

	// DeployKey is the filesystem path to a private key file; its
	// public counterpart lives at DeployKey+".pub".
	DeployKey string `json:"deploy_key,omitempty"`

	// JenkinsJob is the CI job name; empty skips the CI check.
	JenkinsJob string `json:"jenkins_job,omitempty"`
	// JenkinsGit controls whether the CI build's revision must match
	// upstream HEAD of GitBranch. nil means "unset"; WithDefaults
	// expands it to true, the schema default, rather than the false a
	// plain bool would silently decode a missing field to.
	JenkinsGit *bool `json:"jenkins_git"`
	// JenkinsStates lists build results accepted as "good".
	JenkinsStates []string `json:"jenkins_states"`

	// Artifacts, when true, copies CI-build artifacts into the
	// working copy.
	Artifacts bool `json:"artifacts"`

	// Script is a shell command line run inside the working copy
	// after refresh; empty skips it.
	Script string `json:"script,omitempty"`

	// Services is the ordered list of host service names to restart.
	Services []string `json:"services"`

	// BigboatURL, BigboatKey, BigboatCompose together describe an
	// optional container-dashboard target; all three are required
	// together.
	BigboatURL     string `json:"bigboat_url,omitempty"`
	BigboatKey     string `json:"bigboat_key,omitempty"`
	BigboatCompose string `json:"bigboat_compose,omitempty"`

	// SecretFiles is the ordered mapping of destination path (relative
	// to GitPath) to operator-supplied content.
	SecretFiles SecretFiles `json:"secret_files"`
}

// Label returns DisplayName if set, else Name.
func (d Deployment) Label() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.Name
}

// JenkinsGitEnabled reports whether the CI build's revision must match
// upstream HEAD, treating an unset JenkinsGit as its schema default of
// true.
func (d Deployment) JenkinsGitEnabled() bool {
	return d.JenkinsGit == nil || *d.JenkinsGit
}

// WithDefaults returns a copy of d with every unset field (other than
// Name) expanded to its schema default, per spec.md §4.2: "read expands
// missing scalar fields to their schema defaults." DeploymentFields is
// the single source of truth for which fields have a non-zero default
// and how to detect "unset".
func (d Deployment) WithDefaults() Deployment {
	for _, f := range DeploymentFields {
		if f.isZero != nil && f.applyDefault != nil && f.isZero(&d) {
			f.applyDefault(&d)
		}
	}
	return d
}

// ProgressState is one of the four states a DeployProgress record can be
// in.
type ProgressState string

const (
	// StateStarting is published the instant a DeployTask is admitted.
	StateStarting ProgressState = "starting"
	// StateProgress is published at each phase boundary while the task
	// runs.
	StateProgress ProgressState = "progress"
	// StateSuccess is a terminal state: the pipeline completed.
	StateSuccess ProgressState = "success"
	// StateError is a terminal state: the pipeline failed.
	StateError ProgressState = "error"
)

// Terminal reports whether state is one of the two terminal states.
func (s ProgressState) Terminal() bool {
	return s == StateSuccess || s == StateError
}

// DeployProgress is the last-published progress record for one active
// deployment. Worker is non-nil (set by the supervisor, not this struct)
// while a task is in flight; this struct only carries the observable
// fields.
type DeployProgress struct {
	State   ProgressState `json:"state"`
	Message string        `json:"message"`
}
