package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/deployhub/deployhub-core/ci"
	"github.com/deployhub/deployhub-core/dashboard"
	"github.com/deployhub/deployhub-core/schema"
	"github.com/deployhub/deployhub-core/scm"
	"github.com/deployhub/deployhub-core/store"
	"github.com/deployhub/deployhub-core/task"
	"github.com/deployhub/deployhub-core/webui"
	"github.com/deployhub/deployhub-core/websession"
)

type fakeChecker struct{ users map[string]string }

func (f *fakeChecker) Check(ctx context.Context, username, password string) (bool, error) {
	want, ok := f.users[username]
	return ok && want == password, nil
}

type fakeSCM struct{}

func (fakeSCM) IsEmpty(path string) (bool, error) { return true, nil }
func (fakeSCM) Head(path string) (string, error)  { return "", nil }
func (fakeSCM) RemoteHead(ctx context.Context, src scm.Source, branch string) (string, error) {
	return "", nil
}
func (fakeSCM) Refresh(ctx context.Context, src scm.Source, path, branch string) (scm.WorkingCopy, error) {
	return scm.WorkingCopy{}, nil
}
func (fakeSCM) Branches(ctx context.Context, src scm.Source) ([]string, error) { return nil, nil }
func (fakeSCM) Diff(repoPath, prevHead, head string, paths []string) (bool, error) {
	return false, nil
}
func (fakeSCM) CompareURL(src scm.Source, prevHead, head string) (string, bool) { return "", false }
func (fakeSCM) TreeURL(src scm.Source, head string) (string, bool)              { return "", false }

type fakeCI struct{}

func (fakeCI) GetJob(ctx context.Context, name string) (ci.Job, error) { return ci.Job{}, nil }
func (fakeCI) GetLastBranchBuild(ctx context.Context, job ci.Job, branchKey string) (ci.Build, bool, error) {
	return ci.Build{}, false, nil
}

type fakeDashboard struct{}

func (fakeDashboard) GetApp(ctx context.Context, baseURL, key, app string) (bool, error) {
	return true, nil
}
func (fakeDashboard) CreateApp(ctx context.Context, baseURL, key, app string) error { return nil }
func (fakeDashboard) UpdateCompose(ctx context.Context, baseURL, key, app, filename string, contents []byte) error {
	return nil
}
func (fakeDashboard) UpdateInstance(ctx context.Context, baseURL, key, app, instance, version string) error {
	return nil
}

func newTestController(t *testing.T) (*Controller, *store.DeploymentSet) {
	t.Helper()

	tmpl, err := webui.Load()
	if err != nil {
		t.Fatalf("webui.Load: %v", err)
	}

	deployments := store.NewDeploymentSet()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := Config{
		MountPrefix:   "/deploy",
		DeployDataDir: t.TempDir(),
		StorePath:     filepath.Join(t.TempDir(), "deployment.json"),
		Templates:     tmpl,
		Sessions:      websession.NewStore(websession.NewRandomKey()),
		Auth:          &fakeChecker{users: map[string]string{"admin": "secret"}},
		Deployments:   deployments,
		Supervisor:    task.NewSupervisor(),
		Deps: task.Dependencies{
			SCM:        fakeSCM{},
			CI:         fakeCI{},
			Dashboard:  fakeDashboard{},
			HTTPClient: http.DefaultClient,
		},
		Logger: logger,
	}
	return New(cfg), deployments
}

func login(t *testing.T, c *Controller) []*http.Cookie {
	t.Helper()
	form := url.Values{"username": {"admin"}, "password": {"secret"}, "page": {"list"}}
	req := httptest.NewRequest(http.MethodPost, "/deploy/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("login status = %d, want 302; body=%s", rec.Code, rec.Body.String())
	}
	return rec.Result().Cookies()
}

func withCookies(req *http.Request, cookies []*http.Cookie) *http.Request {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func TestIndex_RendersLoginFormWithPassthroughParams(t *testing.T) {
	c, _ := newTestController(t)
	req := httptest.NewRequest(http.MethodGet, "/deploy/index?page=edit&name=test", nil)
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `value="test"`) {
		t.Errorf("body missing passthrough param: %s", rec.Body.String())
	}
}

func TestIndex_InvalidPageIsBadRequest(t *testing.T) {
	c, _ := newTestController(t)
	req := httptest.NewRequest(http.MethodGet, "/deploy/index?page=bogus", nil)
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestList_RedirectsToIndexWhenUnauthenticated(t *testing.T) {
	c, _ := newTestController(t)
	req := httptest.NewRequest(http.MethodGet, "/deploy/list", nil)
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.Contains(loc, "/deploy/index") || !strings.Contains(loc, "page=list") {
		t.Errorf("Location = %q", loc)
	}
}

func TestLogin_WrongPasswordIsUnauthorized(t *testing.T) {
	c, _ := newTestController(t)
	form := url.Values{"username": {"admin"}, "password": {"wrong"}, "page": {"list"}}
	req := httptest.NewRequest(http.MethodPost, "/deploy/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLoginThenList_Succeeds(t *testing.T) {
	c, deployments := newTestController(t)
	deployments.Add(schema.Deployment{Name: "test"}.WithDefaults())
	cookies := login(t, c)

	req := withCookies(httptest.NewRequest(http.MethodGet, "/deploy/list", nil), cookies)
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "test") {
		t.Errorf("body missing entry: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "status-outdated") {
		t.Errorf("expected outdated status for a deployment with no working copy: %s", rec.Body.String())
	}
}

func TestCreate_DuplicateNameIsConflict(t *testing.T) {
	c, deployments := newTestController(t)
	deployments.Add(schema.Deployment{Name: "monetdb-import"}.WithDefaults())
	cookies := login(t, c)

	form := url.Values{"name": {"monetdb-import"}, "git_branch": {"master"}}
	req := withCookies(httptest.NewRequest(http.MethodPost, "/deploy/create", strings.NewReader(form.Encode())), cookies)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Deployment 'monetdb-import' already exists") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestCreate_NewDeploymentShowsNewPublicKey(t *testing.T) {
	c, deployments := newTestController(t)
	cookies := login(t, c)

	form := url.Values{"name": {"test"}, "git_url": {"git@example.org:test.git"}}
	req := withCookies(httptest.NewRequest(http.MethodPost, "/deploy/create", strings.NewReader(form.Encode())), cookies)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "new deploy key") {
		t.Errorf("body missing new-key message: %s", rec.Body.String())
	}
	if !deployments.Contains("test") {
		t.Error("deployment was not added to the set")
	}
}

func TestEdit_GetWithoutNameRedirectsToList(t *testing.T) {
	c, _ := newTestController(t)
	cookies := login(t, c)

	req := withCookies(httptest.NewRequest(http.MethodGet, "/deploy/edit", nil), cookies)
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if !strings.HasSuffix(rec.Header().Get("Location"), "/deploy/list") {
		t.Errorf("Location = %q", rec.Header().Get("Location"))
	}
}

func TestEdit_UnknownNameIsNotFound(t *testing.T) {
	c, _ := newTestController(t)
	cookies := login(t, c)

	req := withCookies(httptest.NewRequest(http.MethodGet, "/deploy/edit?name=nope", nil), cookies)
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestEdit_RenameWithNewDeployKey(t *testing.T) {
	c, deployments := newTestController(t)
	deployments.Add(schema.Deployment{Name: "monetdb-import", GitURL: "git@example.org:x.git"}.WithDefaults())
	cookies := login(t, c)

	form := url.Values{
		"old_name":    {"monetdb-import"},
		"name":        {"test"},
		"jenkins_job": {"build-test"},
	}
	req := withCookies(httptest.NewRequest(http.MethodPost, "/deploy/edit", strings.NewReader(form.Encode())), cookies)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "new deploy key") {
		t.Errorf("body missing new-key message: %s", rec.Body.String())
	}
	if deployments.Contains("monetdb-import") {
		t.Error("old name still present after rename")
	}
	if !deployments.Contains("test") {
		t.Error("new name missing after rename")
	}
}

func TestEdit_KeepDeployKey(t *testing.T) {
	c, deployments := newTestController(t)
	dataDir := t.TempDir()
	c.deployDataDir = dataDir
	keyPath := filepath.Join(dataDir, "key-monetdb-import")
	if err := writeFakeKey(keyPath); err != nil {
		t.Fatal(err)
	}
	deployments.Add(schema.Deployment{Name: "monetdb-import", DeployKey: keyPath}.WithDefaults())
	cookies := login(t, c)

	form := url.Values{
		"old_name":   {"monetdb-import"},
		"name":       {"monetdb-import"},
		"deploy_key": {"1"},
	}
	req := withCookies(httptest.NewRequest(http.MethodPost, "/deploy/edit", strings.NewReader(form.Encode())), cookies)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "original deploy key") {
		t.Errorf("body missing keep-key message: %s", rec.Body.String())
	}
}

func TestDeploy_SingleFlightAdmissionRejectsSecondStart(t *testing.T) {
	c, deployments := newTestController(t)
	deployments.Add(schema.Deployment{Name: "monetdb-import", GitURL: "git@example.org:x.git", Script: "sh -c 'sleep 5'"}.WithDefaults())
	cookies := login(t, c)

	form := url.Values{"name": {"monetdb-import"}}
	first := withCookies(httptest.NewRequest(http.MethodPost, "/deploy/deploy", strings.NewReader(form.Encode())), cookies)
	first.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec1 := httptest.NewRecorder()
	c.ServeHTTP(rec1, first)
	if rec1.Code != http.StatusOK {
		t.Fatalf("first deploy status = %d, want 200; body=%s", rec1.Code, rec1.Body.String())
	}

	second := withCookies(httptest.NewRequest(http.MethodPost, "/deploy/deploy", strings.NewReader(form.Encode())), cookies)
	second.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec2 := httptest.NewRecorder()
	c.ServeHTTP(rec2, second)
	if rec2.Code != http.StatusInternalServerError {
		t.Fatalf("second deploy status = %d, want 500; body=%s", rec2.Code, rec2.Body.String())
	}
	if !strings.Contains(rec2.Body.String(), "Another deployment of monetdb-import is already underway") {
		t.Errorf("body = %q", rec2.Body.String())
	}
}

func TestDeploy_GetOnUnknownNameRedirectsToList(t *testing.T) {
	c, _ := newTestController(t)
	cookies := login(t, c)

	req := withCookies(httptest.NewRequest(http.MethodGet, "/deploy/deploy?name=nope", nil), cookies)
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
}

func TestLogout_ClearsSessionAndRedirects(t *testing.T) {
	c, _ := newTestController(t)
	cookies := login(t, c)

	req := withCookies(httptest.NewRequest(http.MethodGet, "/deploy/logout", nil), cookies)
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}

	postLogout := withCookies(httptest.NewRequest(http.MethodGet, "/deploy/list", nil), rec.Result().Cookies())
	rec2 := httptest.NewRecorder()
	c.ServeHTTP(rec2, postLogout)
	if rec2.Code != http.StatusFound {
		t.Fatalf("status after logout = %d, want 302 (unauthenticated)", rec2.Code)
	}
}

func TestCSS_HonorsIfNoneMatch(t *testing.T) {
	c, _ := newTestController(t)

	req := httptest.NewRequest(http.MethodGet, "/deploy/css", nil)
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	req2 := httptest.NewRequest(http.MethodGet, "/deploy/css", nil)
	req2.Header.Set("If-None-Match", etag)
	rec2 := httptest.NewRecorder()
	c.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusNotModified {
		t.Fatalf("status = %d, want 304", rec2.Code)
	}
}

func writeFakeKey(path string) error {
	return os.WriteFile(path+".pub", []byte("ssh-ed25519 AAAAfake test\n"), 0o644)
}
