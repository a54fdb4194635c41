// Package webui renders the Controller's server-side HTML pages
// (spec.md §4.8: index/list/create/edit/deploy) from templates parsed
// once at startup, plus the static stylesheet served at GET /css.
// No repo in the example pack ships a server-side templating
// dependency (the pack's web-facing services are JSON APIs or
// Kubernetes controllers), so this package stays on the standard
// library's html/template.
package webui

import (
	"embed"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templateFS embed.FS

// CSS is the static stylesheet served at GET /css.
//
//go:embed static/style.css
var CSS []byte

// Templates holds one parsed template set per page, each composed of
// the shared layout plus that page's content block.
type Templates struct {
	index  *template.Template
	list   *template.Template
	create *template.Template
	edit   *template.Template
	deploy *template.Template
}

// Load parses the embedded templates once. Call at startup; the result
// is safe for concurrent use by multiple request handlers.
func Load() (*Templates, error) {
	page := func(name string) (*template.Template, error) {
		return template.ParseFS(templateFS, "templates/layout.html", "templates/"+name)
	}

	index, err := page("index.html")
	if err != nil {
		return nil, err
	}
	list, err := page("list.html")
	if err != nil {
		return nil, err
	}
	form, err := page("form.html")
	if err != nil {
		return nil, err
	}
	deploy, err := page("deploy.html")
	if err != nil {
		return nil, err
	}

	return &Templates{index: index, list: list, create: form, edit: form, deploy: deploy}, nil
}

// IndexData renders the login page.
type IndexData struct {
	Title  string
	Error  string
	Page   string
	Params map[string][]string
}

// Index renders the login page.
func (t *Templates) Index(w io.Writer, data IndexData) error {
	data.Title = "Log in"
	return t.index.ExecuteTemplate(w, "layout", data)
}

// ListEntry is one row of the deployment list.
type ListEntry struct {
	Name       string
	Label      string
	UpToDate   bool
	CompareURL string
	TreeURL    string
}

// ListData renders the deployment list.
type ListData struct {
	Title   string
	Error   string
	Entries []ListEntry
}

// List renders the deployment list.
func (t *Templates) List(w io.Writer, data ListData) error {
	data.Title = "Deployments"
	return t.list.ExecuteTemplate(w, "layout", data)
}

// FormData renders the create/edit form, and the new deploy key's
// public half after a successful submission.
type FormData struct {
	Title                 string
	Error                 string
	Heading               string
	Action                string
	OldName               string
	ShowDeployKeyCheckbox bool
	Deployment            FormDeployment
	JenkinsStatesCSV      string
	ServicesCSV           string
	SecretNamesSSV        string
	NewPublicKey          string
	DeployKeyMessage      string
}

// FormDeployment is the subset of schema.Deployment the form template
// renders; webui does not import package schema so it stays decoupled
// from the persistence layer's exact field set.
type FormDeployment struct {
	Name           string
	DisplayName    string
	GitURL         string
	GitPath        string
	GitBranch      string
	JenkinsJob     string
	JenkinsGit     bool
	Artifacts      bool
	Script         string
	BigboatURL     string
	BigboatKey     string
	BigboatCompose string
}

// Create renders the create form.
func (t *Templates) Create(w io.Writer, data FormData) error {
	data.Title = "New deployment"
	return t.create.ExecuteTemplate(w, "layout", data)
}

// Edit renders the edit form.
func (t *Templates) Edit(w io.Writer, data FormData) error {
	data.Title = "Edit deployment"
	return t.edit.ExecuteTemplate(w, "layout", data)
}

// DeployProgress is the subset of schema.DeployProgress the deploy
// template renders.
type DeployProgress struct {
	State   string
	Message string
}

// DeployData renders the in-progress/terminal deploy page.
type DeployData struct {
	Title    string
	Error    string
	Name     string
	Progress DeployProgress
}

// Deploy renders the deploy progress page.
func (t *Templates) Deploy(w io.Writer, data DeployData) error {
	data.Title = "Deploy " + data.Name
	return t.deploy.ExecuteTemplate(w, "layout", data)
}
