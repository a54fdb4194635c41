package schema

import "testing"

func TestWithDefaults_JenkinsGitUnsetDefaultsToTrue(t *testing.T) {
	d := Deployment{Name: "bare"}.WithDefaults()
	if !d.JenkinsGitEnabled() {
		t.Error("JenkinsGitEnabled() = false after WithDefaults on an unset field, want true")
	}
}

func TestWithDefaults_JenkinsGitExplicitFalsePreserved(t *testing.T) {
	f := false
	d := Deployment{Name: "bare", JenkinsGit: &f}.WithDefaults()
	if d.JenkinsGitEnabled() {
		t.Error("WithDefaults overrode an explicit jenkins_git=false")
	}
}

func TestWithDefaults_GitBranchAndListsExpanded(t *testing.T) {
	d := Deployment{Name: "bare"}.WithDefaults()
	if d.GitBranch != "master" {
		t.Errorf("GitBranch = %q, want %q", d.GitBranch, "master")
	}
	if len(d.JenkinsStates) != 1 || d.JenkinsStates[0] != "SUCCESS" {
		t.Errorf("JenkinsStates = %v, want [SUCCESS]", d.JenkinsStates)
	}
	if d.Services == nil || len(d.Services) != 0 {
		t.Errorf("Services = %v, want non-nil empty slice", d.Services)
	}
	if d.SecretFiles == nil {
		t.Error("SecretFiles = nil, want non-nil empty SecretFiles")
	}
}

func TestBuildFromForm_CoercesEveryField(t *testing.T) {
	form := FormValues{
		"display_name":       {"My App"},
		"git_url":            {"git@example.org:app.git"},
		"jenkins_job":        {"app"},
		"jenkins_git":        {"on"},
		"jenkins_states":     {"SUCCESS,UNSTABLE"},
		"artifacts":          {"on"},
		"services":           {"app,worker"},
		"secret_files_names": {"a.env b.env"},
		"secret_files":       {"A=1", "B=2"},
	}

	d := BuildFromForm(form, "app", "/keys/app")
	if d.Name != "app" || d.DeployKey != "/keys/app" {
		t.Fatalf("Name/DeployKey = %q/%q, want caller-supplied values", d.Name, d.DeployKey)
	}
	if d.DisplayName != "My App" {
		t.Errorf("DisplayName = %q", d.DisplayName)
	}
	if !d.JenkinsGitEnabled() {
		t.Error("JenkinsGitEnabled() = false, want true for a checked checkbox")
	}
	if len(d.JenkinsStates) != 2 || d.JenkinsStates[1] != "UNSTABLE" {
		t.Errorf("JenkinsStates = %v", d.JenkinsStates)
	}
	if len(d.Services) != 2 || d.Services[0] != "app" {
		t.Errorf("Services = %v", d.Services)
	}
	if len(d.SecretFiles) != 2 || d.SecretFiles[1].Name != "b.env" || d.SecretFiles[1].Content != "B=2" {
		t.Errorf("SecretFiles = %v", d.SecretFiles)
	}
}

func TestBuildFromForm_UncheckedBoxesCoerceFalse(t *testing.T) {
	d := BuildFromForm(FormValues{}, "app", "/keys/app")
	if d.JenkinsGitEnabled() {
		t.Error("JenkinsGitEnabled() = true, want false: an omitted checkbox must coerce to false, not fall back to the schema default")
	}
	if d.Artifacts {
		t.Error("Artifacts = true, want false for an omitted checkbox")
	}
}
