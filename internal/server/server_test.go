package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/codem/internal/analysis"
	"github.com/zulandar/codem/internal/apperr"
	"github.com/zulandar/codem/internal/copilot"
	"github.com/zulandar/codem/internal/migration"
	"github.com/zulandar/codem/internal/models"
	"github.com/zulandar/codem/internal/normalize"
	"github.com/zulandar/codem/internal/project"
	"github.com/zulandar/codem/internal/run"
	"github.com/zulandar/codem/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router *gin.Engine
	store  store.Store
}

func newTestEnv(t *testing.T, migrate migration.Backend, ask copilot.Backend) *testEnv {
	t.Helper()
	st := store.NewFileStore(filepath.Join(t.TempDir(), "db.json"))
	if migrate == nil {
		migrate = migration.BackendFunc(func(ctx context.Context, req migration.Request) (any, error) {
			return normalize.Decode([]byte(`{"files":[{"path":"src/A.java","status":"migrated"},{"path":"src/B.java","status":"pending"}]}`))
		})
	}
	if ask == nil {
		ask = copilot.BackendFunc(func(ctx context.Context, p copilot.Payload) (*copilot.Answer, error) {
			return &copilot.Answer{Answer: "about " + p.FileID, SuggestedTests: []string{}, Risks: []string{}}, nil
		})
	}
	router, err := NewRouter(StartOpts{
		Projects: project.NewService(st, analysis.Mock{}),
		Runs:     run.NewService(st, migrate),
		Copilot:  copilot.NewAdapter(st, ask),
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return &testEnv{router: router, store: st}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func (e *testEnv) createProject(t *testing.T, body string) models.Project {
	t.Helper()
	w := e.do(t, http.MethodPost, "/projects", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /projects = %d: %s", w.Code, w.Body)
	}
	return decode[models.Project](t, w)
}

func (e *testEnv) createRun(t *testing.T, projectID string) models.Run {
	t.Helper()
	w := e.do(t, http.MethodPost, "/projects/"+projectID+"/runs", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("POST runs = %d: %s", w.Code, w.Body)
	}
	return decode[models.Run](t, w)
}

type errorBody struct {
	Kind    string `json:"kind"`
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Details string `json:"details"`
}

func TestNewRouter_RequiresServices(t *testing.T) {
	if _, err := NewRouter(StartOpts{}); err == nil || !strings.Contains(err.Error(), "required") {
		t.Errorf("err = %v, want required error", err)
	}
}

func TestCreateProject_DerivesName(t *testing.T) {
	e := newTestEnv(t, nil, nil)
	p := e.createProject(t, `{"repoUrl":"https://github.com/a/b.git"}`)
	if p.Name != "b.git" || p.Status != models.ProjectNotAnalyzed || p.ID == "" {
		t.Errorf("project = %+v", p)
	}
}

func TestCreateProject_KeepsGivenName(t *testing.T) {
	e := newTestEnv(t, nil, nil)
	p := e.createProject(t, `{"name":"Payments","repoUrl":"https://github.com/a/b.git"}`)
	if p.Name != "Payments" {
		t.Errorf("name = %q, want Payments", p.Name)
	}
}

func TestCreateProject_BadRequests(t *testing.T) {
	e := newTestEnv(t, nil, nil)
	for _, body := range []string{`{"name":"x"}`, `{not json`, ``, `{"repoUrl":"r","sourceLanguage":"cobol"}`} {
		w := e.do(t, http.MethodPost, "/projects", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, w.Code)
			continue
		}
		if eb := decode[errorBody](t, w); eb.Kind != string(apperr.KindInvalidArgument) || eb.Error == "" {
			t.Errorf("body %q: error = %+v", body, eb)
		}
	}
}

func TestListAndGetProject(t *testing.T) {
	e := newTestEnv(t, nil, nil)
	p := e.createProject(t, `{"repoUrl":"https://github.com/a/b"}`)
	e.createRun(t, p.ID)

	w := e.do(t, http.MethodGet, "/projects", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /projects = %d", w.Code)
	}
	if list := decode[[]models.Project](t, w); len(list) != 1 || list[0].ID != p.ID {
		t.Errorf("list = %+v", list)
	}

	w = e.do(t, http.MethodGet, "/projects/"+p.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET project = %d", w.Code)
	}
	got := decode[struct {
		Project models.Project `json:"project"`
		Runs    []models.Run   `json:"runs"`
	}](t, w)
	if got.Project.ID != p.ID || len(got.Runs) != 1 {
		t.Errorf("got %+v", got)
	}

	if w := e.do(t, http.MethodGet, "/projects/proj_missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing project = %d, want 404", w.Code)
	}
}

func TestListProjects_EmptyIsArray(t *testing.T) {
	e := newTestEnv(t, nil, nil)
	w := e.do(t, http.MethodGet, "/projects", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", w.Body.String())
	}
}

func TestAnalyzeProject(t *testing.T) {
	e := newTestEnv(t, nil, nil)
	p := e.createProject(t, `{"repoUrl":"https://github.com/a/b"}`)

	w := e.do(t, http.MethodPost, "/projects/"+p.ID+"/analysis", "")
	if w.Code != http.StatusOK {
		t.Fatalf("analyze = %d: %s", w.Code, w.Body)
	}
	got := decode[models.Project](t, w)
	if got.Status != models.ProjectReady || got.Analysis == nil || len(got.Analysis.Languages) != 4 ||
		len(got.Analysis.Dependencies) != 3 || len(got.Analysis.Warnings) != 3 {
		t.Errorf("project = %+v", got)
	}

	if w := e.do(t, http.MethodPost, "/projects/proj_missing/analysis", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing project = %d, want 404", w.Code)
	}
}

func TestCreateRun(t *testing.T) {
	e := newTestEnv(t, nil, nil)
	p := e.createProject(t, `{"repoUrl":"https://github.com/a/b"}`)

	w := e.do(t, http.MethodPost, "/projects/"+p.ID+"/runs", `{"scope":"module"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	r := decode[models.Run](t, w)
	if r.Scope != "module" || r.Status != models.RunCompleted || r.Stats.TotalFiles != 2 || r.Stats.Migrated != 1 || r.Stats.Pending != 1 {
		t.Errorf("run = %+v", r)
	}

	if r := e.createRun(t, p.ID); r.Scope != run.DefaultScope {
		t.Errorf("default scope = %q", r.Scope)
	}

	w = e.do(t, http.MethodGet, "/projects/"+p.ID+"/runs", "")
	if runs := decode[[]models.Run](t, w); len(runs) != 2 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestCreateRun_UnknownProject(t *testing.T) {
	e := newTestEnv(t, nil, nil)
	for _, method := range []string{http.MethodPost, http.MethodGet} {
		if w := e.do(t, method, "/projects/proj_missing/runs", ""); w.Code != http.StatusNotFound {
			t.Errorf("%s = %d, want 404", method, w.Code)
		}
	}
}

func TestCreateRun_BackendUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()
	e := newTestEnv(t, migration.NewClient(endpoint, 0), nil)
	p := e.createProject(t, `{"repoUrl":"https://github.com/a/b"}`)

	r := e.createRun(t, p.ID)
	if r.Stats.TotalFiles != 1 || len(r.FileIDs) != 1 {
		t.Fatalf("run = %+v, want one fallback file", r)
	}

	w := e.do(t, http.MethodGet, "/projects/"+p.ID+"/runs/"+r.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET run = %d", w.Code)
	}
	got := decode[struct {
		Run   models.Run          `json:"run"`
		Files []models.FileRecord `json:"files"`
	}](t, w)
	if len(got.Files) != 1 {
		t.Fatalf("files = %+v", got.Files)
	}
	f := got.Files[0]
	if f.Path != "src/example/Example.java" || f.Status != models.FileMigrated || f.RunID != r.ID {
		t.Errorf("fallback file = %+v", f)
	}
}

func TestGetRun_Ownership(t *testing.T) {
	e := newTestEnv(t, nil, nil)
	p1 := e.createProject(t, `{"repoUrl":"https://github.com/a/one"}`)
	p2 := e.createProject(t, `{"repoUrl":"https://github.com/a/two"}`)
	r := e.createRun(t, p1.ID)

	if w := e.do(t, http.MethodGet, "/projects/"+p2.ID+"/runs/"+r.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("run via other project = %d, want 404", w.Code)
	}
}

func TestCopilot(t *testing.T) {
	e := newTestEnv(t, nil, nil)
	p := e.createProject(t, `{"repoUrl":"https://github.com/a/b"}`)
	r := e.createRun(t, p.ID)

	body, _ := json.Marshal(copilot.Request{ProjectID: p.ID, RunID: r.ID, FileID: r.FileIDs[0], Question: "why?"})
	w := e.do(t, http.MethodPost, "/copilot", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	ans := decode[copilot.Answer](t, w)
	if ans.Answer != "about "+r.FileIDs[0] {
		t.Errorf("answer = %+v", ans)
	}
	if !strings.Contains(w.Body.String(), `"suggestedTests":[]`) || !strings.Contains(w.Body.String(), `"risks":[]`) {
		t.Errorf("body = %s, want empty lists", w.Body)
	}
}

func TestCopilot_FileFromOtherRun(t *testing.T) {
	e := newTestEnv(t, nil, nil)
	p := e.createProject(t, `{"repoUrl":"https://github.com/a/b"}`)
	r1 := e.createRun(t, p.ID)
	r2 := e.createRun(t, p.ID)

	body, _ := json.Marshal(copilot.Request{ProjectID: p.ID, RunID: r1.ID, FileID: r2.FileIDs[0], Question: "why?"})
	w := e.do(t, http.MethodPost, "/copilot", string(body))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", w.Code, w.Body)
	}
	eb := decode[errorBody](t, w)
	if eb.Kind != string(apperr.KindNotFound) || !strings.HasPrefix(eb.Error, "file not found") {
		t.Errorf("error = %+v", eb)
	}
}

func TestCopilot_Errors(t *testing.T) {
	failing := copilot.BackendFunc(func(ctx context.Context, p copilot.Payload) (*copilot.Answer, error) {
		return nil, apperr.Upstream("copilot", http.StatusBadGateway, "n8n down", nil)
	})
	e := newTestEnv(t, nil, failing)
	p := e.createProject(t, `{"repoUrl":"https://github.com/a/b"}`)
	r := e.createRun(t, p.ID)

	if w := e.do(t, http.MethodPost, "/copilot", `{"projectId":"`+p.ID+`"}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing fields = %d, want 400", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/copilot", `{"projectId":"`+p.ID+`","runId":"run_x","fileId":"f","question":"q"}`); w.Code != http.StatusNotFound {
		t.Errorf("unknown run = %d, want 404", w.Code)
	}

	body, _ := json.Marshal(copilot.Request{ProjectID: p.ID, RunID: r.ID, FileID: r.FileIDs[0], Question: "why?"})
	w := e.do(t, http.MethodPost, "/copilot", string(body))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("upstream failure = %d, want 500", w.Code)
	}
	eb := decode[errorBody](t, w)
	if eb.Kind != string(apperr.KindUpstream) || eb.Status != http.StatusBadGateway || eb.Details != "n8n down" {
		t.Errorf("error = %+v", eb)
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[apperr.Kind]int{
		apperr.KindInvalidArgument:    400,
		apperr.KindNotFound:           404,
		apperr.KindConflict:           409,
		apperr.KindUpstream:           500,
		apperr.KindStorageUnavailable: 500,
		apperr.KindInternal:           500,
	}
	for kind, want := range tests {
		if got := statusFor(kind); got != want {
			t.Errorf("statusFor(%s) = %d, want %d", kind, got, want)
		}
	}
}
