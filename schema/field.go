package schema

import "strings"

// FieldType names the wire/coercion behavior of one configuration field.
type FieldType string

const (
	// FieldString is a plain string field.
	FieldString FieldType = "str"
	// FieldBool is a checkbox-style field: presence of a non-empty form
	// value means true.
	FieldBool FieldType = "bool"
	// FieldList is a comma-separated list on the wire.
	FieldList FieldType = "list"
	// FieldFile is a sequence of uploaded parts paired with a sibling
	// "<name>_names" field giving destination filenames.
	FieldFile FieldType = "file"
	// FieldJob is a CI job identifier; treated as a plain string on the
	// wire but tagged distinctly from FieldString.
	FieldJob FieldType = "job"
)

// FormValues is the subset of url.Values a Field's coerce func needs.
type FormValues map[string][]string

func (f FormValues) first(name string) string {
	if v, ok := f[name]; ok && len(v) > 0 {
		return v[0]
	}
	return ""
}

// Field describes one configuration field: its wire name, its display
// label, its type, and its zero-value default. isZero/applyDefault let
// WithDefaults expand a missing field without a hardcoded per-field
// sequence; coerce lets BuildFromForm read the same field out of a
// submitted form. Persistence defaults and input coercion both consume
// this one declarative list; the HTML form in package webui lists its
// inputs and labels by hand and does not read it. name and deploy_key
// are deliberately absent: name is the set key assigned by the caller, and the "deploy_key" form field is a
// keep-or-rotate checkbox, not this schema's deploy_key path value, so
// both are handled directly by the caller instead of generically here.
type Field struct {
	Name    string
	Label   string
	Type    FieldType
	Default any

	isZero       func(*Deployment) bool
	applyDefault func(*Deployment)
	coerce       func(*Deployment, FormValues)
}

// DeploymentFields is the declarative schema for Deployment, consumed by
// DeploymentSet persistence (to expand missing fields to their defaults,
// via WithDefaults) and by the create/edit forms (to coerce submitted
// input, via BuildFromForm).
var DeploymentFields = []Field{
	{Name: "display_name", Label: "Display name", Type: FieldString, Default: "",
		coerce: func(d *Deployment, form FormValues) { d.DisplayName = form.first("display_name") }},
	{Name: "git_url", Label: "Git URL", Type: FieldString, Default: "",
		coerce: func(d *Deployment, form FormValues) { d.GitURL = form.first("git_url") }},
	{Name: "git_path", Label: "Local path", Type: FieldString, Default: "",
		coerce: func(d *Deployment, form FormValues) { d.GitPath = form.first("git_path") }},
	{Name: "git_branch", Label: "Branch", Type: FieldString, Default: "master",
		isZero:       func(d *Deployment) bool { return d.GitBranch == "" },
		applyDefault: func(d *Deployment) { d.GitBranch = "master" },
		coerce:       func(d *Deployment, form FormValues) { d.GitBranch = form.first("git_branch") }},
	{Name: "jenkins_job", Label: "Jenkins job", Type: FieldJob, Default: "",
		coerce: func(d *Deployment, form FormValues) { d.JenkinsJob = form.first("jenkins_job") }},
	{Name: "jenkins_git", Label: "Require matching revision", Type: FieldBool, Default: true,
		isZero: func(d *Deployment) bool { return d.JenkinsGit == nil },
		applyDefault: func(d *Deployment) {
			v := true
			d.JenkinsGit = &v
		},
		coerce: func(d *Deployment, form FormValues) {
			v := CoerceBool(form.first("jenkins_git"))
			d.JenkinsGit = &v
		}},
	{Name: "jenkins_states", Label: "Accepted build results", Type: FieldList, Default: []string{"SUCCESS"},
		isZero:       func(d *Deployment) bool { return d.JenkinsStates == nil },
		applyDefault: func(d *Deployment) { d.JenkinsStates = []string{"SUCCESS"} },
		coerce:       func(d *Deployment, form FormValues) { d.JenkinsStates = CoerceList(form.first("jenkins_states")) }},
	{Name: "artifacts", Label: "Copy build artifacts", Type: FieldBool, Default: false,
		coerce: func(d *Deployment, form FormValues) { d.Artifacts = CoerceBool(form.first("artifacts")) }},
	{Name: "script", Label: "Install script", Type: FieldString, Default: "",
		coerce: func(d *Deployment, form FormValues) { d.Script = form.first("script") }},
	{Name: "services", Label: "Services to restart", Type: FieldList, Default: []string{},
		isZero:       func(d *Deployment) bool { return d.Services == nil },
		applyDefault: func(d *Deployment) { d.Services = []string{} },
		coerce:       func(d *Deployment, form FormValues) { d.Services = CoerceList(form.first("services")) }},
	{Name: "bigboat_url", Label: "BigBoat URL", Type: FieldString, Default: "",
		coerce: func(d *Deployment, form FormValues) { d.BigboatURL = form.first("bigboat_url") }},
	{Name: "bigboat_key", Label: "BigBoat key", Type: FieldString, Default: "",
		coerce: func(d *Deployment, form FormValues) { d.BigboatKey = form.first("bigboat_key") }},
	{Name: "bigboat_compose", Label: "BigBoat compose directory", Type: FieldString, Default: "",
		coerce: func(d *Deployment, form FormValues) { d.BigboatCompose = form.first("bigboat_compose") }},
	{Name: "secret_files", Label: "Secret files", Type: FieldFile, Default: SecretFiles{},
		isZero:       func(d *Deployment) bool { return d.SecretFiles == nil },
		applyDefault: func(d *Deployment) { d.SecretFiles = SecretFiles{} },
		coerce: func(d *Deployment, form FormValues) {
			raw := form["secret_files"]
			contents := make([][]byte, len(raw))
			for i, v := range raw {
				contents[i] = []byte(v)
			}
			d.SecretFiles = CoerceFile(CoerceNames(form.first("secret_files_names")), contents)
		}},
}

// Defaults returns a fresh copy of the schema default for every field
// name, including name and deploy_key (both default to "", even though
// DeploymentFields itself omits them).
func Defaults() map[string]any {
	out := map[string]any{"name": "", "deploy_key": ""}
	for _, f := range DeploymentFields {
		out[f.Name] = copyDefault(f.Default)
	}
	return out
}

func copyDefault(v any) any {
	switch d := v.(type) {
	case []string:
		cp := make([]string, len(d))
		copy(cp, d)
		return cp
	case SecretFiles:
		return d.Clone()
	default:
		return d
	}
}

// BuildFromForm constructs a Deployment from submitted form values,
// coercing every field in DeploymentFields. name and deployKey are
// supplied by the caller rather than read generically: name is the set
// key, and the form's "deploy_key" field is a keep-or-rotate checkbox
// whose meaning is decided by the caller, not this schema.
func BuildFromForm(form FormValues, name, deployKey string) Deployment {
	d := Deployment{Name: name, DeployKey: deployKey}
	for _, f := range DeploymentFields {
		if f.coerce != nil {
			f.coerce(&d, form)
		}
	}
	return d
}

// CoerceList applies the "list" wire-coercion rule: empty string yields an
// empty list; otherwise the value is split on "," with no trimming.
func CoerceList(raw string) []string {
	if raw == "" {
		return []string{}
	}
	out := []string{}
	start := 0
	for i := 0; i < len(raw); i++ {
		if raw[i] == ',' {
			out = append(out, raw[start:i])
			start = i + 1
		}
	}
	out = append(out, raw[start:])
	return out
}

// CoerceNames splits a file field's space-separated "<name>_names" value.
// An empty string yields an empty list; otherwise the value is split on
// single spaces, so empty names keep their position.
func CoerceNames(raw string) []string {
	if raw == "" {
		return []string{}
	}
	return strings.Split(raw, " ")
}

// CoerceBool applies the "bool" wire-coercion rule: a non-empty form value
// means true, regardless of its content.
func CoerceBool(raw string) bool {
	return raw != ""
}

// CoerceFile pairs uploaded part names with their destination filenames,
// positionally, per the "file" wire-coercion rule in spec.md §4.1. Extra
// names beyond the number of parts, or vice versa, are truncated to the
// shorter of the two lengths. Empty names are discarded, matching the
// secret-file reconciliation rule in spec.md §4.8.
func CoerceFile(names []string, contents [][]byte) SecretFiles {
	n := len(names)
	if len(contents) < n {
		n = len(contents)
	}
	out := make(SecretFiles, 0, n)
	for i := 0; i < n; i++ {
		if names[i] == "" {
			continue
		}
		out = append(out, SecretFile{Name: names[i], Content: string(contents[i])})
	}
	return out
}
