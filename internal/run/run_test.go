package run

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/codem/internal/apperr"
	"github.com/zulandar/codem/internal/migration"
	"github.com/zulandar/codem/internal/models"
	"github.com/zulandar/codem/internal/normalize"
	"github.com/zulandar/codem/internal/notify"
	"github.com/zulandar/codem/internal/store"
)

// newTestStore returns a file store seeded with one project.
func newTestStore(t *testing.T, projects ...models.Project) store.Store {
	t.Helper()
	st := store.NewFileStore(filepath.Join(t.TempDir(), "db.json"))
	if len(projects) == 0 {
		projects = []models.Project{{
			ID: "proj_1", Name: "b.git", RepoURL: "https://github.com/a/b.git",
			Status: models.ProjectNotAnalyzed, SourceLanguage: "java", TargetLanguage: "kotlin",
		}}
	}
	err := store.Update(context.Background(), st, func(doc *store.Document) error {
		doc.Projects = append(doc.Projects, projects...)
		return nil
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return st
}

// respond returns a backend answering with the given JSON body.
func respond(body string) migration.Backend {
	return migration.BackendFunc(func(ctx context.Context, req migration.Request) (any, error) {
		return normalize.Decode([]byte(body))
	})
}

func failing(err error) migration.Backend {
	return migration.BackendFunc(func(ctx context.Context, req migration.Request) (any, error) {
		return nil, err
	})
}

func checkStatsInvariant(t *testing.T, r *models.Run) {
	t.Helper()
	if r.Stats.TotalFiles != len(r.FileIDs) {
		t.Errorf("stats.totalFiles = %d, len(fileIds) = %d", r.Stats.TotalFiles, len(r.FileIDs))
	}
	if sum := r.Stats.Migrated + r.Stats.Pending + r.Stats.Manual; sum != r.Stats.TotalFiles {
		t.Errorf("migrated+pending+manual = %d, totalFiles = %d", sum, r.Stats.TotalFiles)
	}
}

func TestCreateRun_Success(t *testing.T) {
	st := newTestStore(t)
	var gotReq migration.Request
	backend := migration.BackendFunc(func(ctx context.Context, req migration.Request) (any, error) {
		gotReq = req
		return normalize.Decode([]byte(`{"files":[
			{"path":"src/A.java","kotlinCode":"class A","originalCode":"class A {}"},
			{"path":"src/B.java","status":"pending"},
			{"path":"src/C.java","status":"manual","notes":"reflection"}
		]}`))
	})
	svc := NewService(st, backend)

	r, err := svc.CreateRun(context.Background(), "proj_1", "module")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	if gotReq.ProjectID != "proj_1" || gotReq.RunID != r.ID || gotReq.RepoURL != "https://github.com/a/b.git" || gotReq.Scope != "module" {
		t.Errorf("backend request = %+v", gotReq)
	}
	if gotReq.SourceLanguage != "java" || gotReq.TargetLanguage != "kotlin" {
		t.Errorf("backend request languages = %q/%q", gotReq.SourceLanguage, gotReq.TargetLanguage)
	}
	if r.Status != models.RunCompleted {
		t.Errorf("Status = %q, want completed", r.Status)
	}
	if r.Scope != "module" {
		t.Errorf("Scope = %q, want module", r.Scope)
	}
	want := models.RunStats{TotalFiles: 3, Migrated: 1, Pending: 1, Manual: 1}
	if r.Stats != want {
		t.Errorf("Stats = %+v, want %+v", r.Stats, want)
	}
	checkStatsInvariant(t, r)

	got, files, err := svc.GetRun(context.Background(), "proj_1", r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.ID != r.ID {
		t.Errorf("GetRun ID = %q, want %q", got.ID, r.ID)
	}
	if len(files) != 3 {
		t.Fatalf("files = %d, want 3", len(files))
	}
	for i, f := range files {
		if f.RunID != r.ID {
			t.Errorf("files[%d].RunID = %q, want %q", i, f.RunID, r.ID)
		}
		if f.ID != r.FileIDs[i] {
			t.Errorf("files[%d].ID = %q, want fileIds order %q", i, f.ID, r.FileIDs[i])
		}
		if f.SourceLanguage != "java" || f.TargetLanguage != "kotlin" {
			t.Errorf("files[%d] languages = %q/%q, want inherited java/kotlin", i, f.SourceLanguage, f.TargetLanguage)
		}
	}
	if files[0].ConvertedCode != "class A" || files[1].ConvertedCode != normalize.ConvertedNotProvided {
		t.Errorf("converted code not normalized: %q, %q", files[0].ConvertedCode, files[1].ConvertedCode)
	}
	if files[2].Notes != "reflection" {
		t.Errorf("files[2].Notes = %q", files[2].Notes)
	}
}

func TestCreateRun_DefaultScope(t *testing.T) {
	svc := NewService(newTestStore(t), respond(`[]`))
	r, err := svc.CreateRun(context.Background(), "proj_1", "  ")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if r.Scope != DefaultScope {
		t.Errorf("Scope = %q, want %q", r.Scope, DefaultScope)
	}
}

func TestCreateRun_ProjectNotFound(t *testing.T) {
	called := false
	backend := migration.BackendFunc(func(ctx context.Context, req migration.Request) (any, error) {
		called = true
		return nil, nil
	})
	svc := NewService(newTestStore(t), backend)

	_, err := svc.CreateRun(context.Background(), "proj_missing", "service")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("error = %v, want not_found", err)
	}
	if called {
		t.Error("backend called for missing project")
	}
}

func TestCreateRun_BackendFailureUsesFallback(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "network", err: apperr.Upstream("migration", 0, "", errors.New("connection refused"))},
		{name: "non-2xx", err: apperr.Upstream("migration", 502, "bad gateway", nil)},
		{name: "plain error", err: errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(newTestStore(t), failing(tt.err))
			r, err := svc.CreateRun(context.Background(), "proj_1", "service")
			if err != nil {
				t.Fatalf("CreateRun should not fail, got %v", err)
			}
			if len(r.FileIDs) != 1 {
				t.Fatalf("fileIds = %d, want 1 fallback file", len(r.FileIDs))
			}
			_, files, err := svc.GetRun(context.Background(), "proj_1", r.ID)
			if err != nil {
				t.Fatalf("GetRun: %v", err)
			}
			f := files[0]
			if f.Path != "src/example/Example.java" || f.Status != "migrated" {
				t.Errorf("fallback file = %s (%s), want src/example/Example.java (migrated)", f.Path, f.Status)
			}
			if f.OriginalCode != FallbackOriginal || f.ConvertedCode != FallbackConverted {
				t.Error("fallback code differs from the fixed example")
			}
			if r.Stats != (models.RunStats{TotalFiles: 1, Migrated: 1}) {
				t.Errorf("Stats = %+v", r.Stats)
			}
		})
	}
}

func TestCreateRun_UnreachableBackendOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	svc := NewService(newTestStore(t), migration.NewClient(url, time.Second))
	r, err := svc.CreateRun(context.Background(), "proj_1", "")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	_, files, err := svc.GetRun(context.Background(), "proj_1", r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if len(files) != 1 || files[0].Path != FallbackPath {
		t.Errorf("files = %+v, want single fallback", files)
	}
}

func TestCreateRun_EmptyResponseIsNotFallback(t *testing.T) {
	for _, body := range []string{`{}`, `{"files":[]}`, `{"ok":true}`, ``} {
		t.Run(fmt.Sprintf("%q", body), func(t *testing.T) {
			svc := NewService(newTestStore(t), respond(body))
			r, err := svc.CreateRun(context.Background(), "proj_1", "service")
			if err != nil {
				t.Fatalf("CreateRun: %v", err)
			}
			if len(r.FileIDs) != 0 || r.Stats.TotalFiles != 0 {
				t.Errorf("run has %d files, want 0", len(r.FileIDs))
			}
			if r.FileIDs == nil {
				t.Error("FileIDs should be empty, not nil")
			}
		})
	}
}

func TestCreateRun_UnknownStatusCountsAsManual(t *testing.T) {
	svc := NewService(newTestStore(t), respond(`[{"status":"failed"},{"status":"migrated"},{"status":""}]`))
	r, err := svc.CreateRun(context.Background(), "proj_1", "service")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	want := models.RunStats{TotalFiles: 3, Migrated: 2, Manual: 1}
	if r.Stats != want {
		t.Errorf("Stats = %+v, want %+v", r.Stats, want)
	}
	checkStatsInvariant(t, r)
}

func TestCreateRun_NotIdempotent(t *testing.T) {
	svc := NewService(newTestStore(t), respond(`[{"path":"a"}]`))
	ctx := context.Background()
	r1, err := svc.CreateRun(ctx, "proj_1", "service")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	r2, err := svc.CreateRun(ctx, "proj_1", "service")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if r1.ID == r2.ID {
		t.Errorf("two runs share ID %q", r1.ID)
	}
	if r1.FileIDs[0] == r2.FileIDs[0] {
		t.Errorf("two runs share file ID %q", r1.FileIDs[0])
	}
	runs, err := svc.ListRuns(ctx, "proj_1")
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != r1.ID || runs[1].ID != r2.ID {
		t.Errorf("ListRuns = %v, want [%s %s]", runs, r1.ID, r2.ID)
	}
}

func TestCreateRun_Deterministic(t *testing.T) {
	n := 0
	ids := func(prefix string) (string, error) {
		n++
		return fmt.Sprintf("%s_%03d", prefix, n), nil
	}
	fixed := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	svc := NewService(newTestStore(t), respond(`[{"path":"a"},{"path":"b"}]`),
		WithIDFunc(ids), WithClock(func() time.Time { return fixed }))

	r, err := svc.CreateRun(context.Background(), "proj_1", "service")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if r.ID != "run_001" {
		t.Errorf("ID = %q, want run_001", r.ID)
	}
	if r.FileIDs[0] != "file_002" || r.FileIDs[1] != "file_003" {
		t.Errorf("FileIDs = %v", r.FileIDs)
	}
	if !r.CreatedAt.Equal(fixed) || !r.UpdatedAt.Equal(fixed) {
		t.Errorf("timestamps = %v/%v, want %v", r.CreatedAt, r.UpdatedAt, fixed)
	}
}

func TestCreateRun_IDFailure(t *testing.T) {
	svc := NewService(newTestStore(t), respond(`[]`), WithIDFunc(func(string) (string, error) {
		return "", errors.New("entropy exhausted")
	}))
	if _, err := svc.CreateRun(context.Background(), "proj_1", ""); err == nil {
		t.Fatal("expected error when IDs cannot be generated")
	}
}

func TestCreateRun_FileLanguageOverridesProject(t *testing.T) {
	svc := NewService(newTestStore(t), respond(`[{"path":"a.py","sourceLanguage":"python"}]`))
	r, err := svc.CreateRun(context.Background(), "proj_1", "")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	_, files, _ := svc.GetRun(context.Background(), "proj_1", r.ID)
	if files[0].SourceLanguage != "python" || files[0].TargetLanguage != "kotlin" {
		t.Errorf("languages = %q/%q, want python/kotlin", files[0].SourceLanguage, files[0].TargetLanguage)
	}
	if r.SourceLanguage != "java" || r.TargetLanguage != "kotlin" {
		t.Errorf("run languages = %q/%q, want project snapshot", r.SourceLanguage, r.TargetLanguage)
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	runs []string
	err  error
}

func (n *recordingNotifier) RunCompleted(ctx context.Context, project models.Project, r models.Run) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, project.ID+"/"+r.ID)
	return n.err
}

func TestCreateRun_Notifies(t *testing.T) {
	n := &recordingNotifier{err: errors.New("slack down")}
	svc := NewService(newTestStore(t), respond(`[]`), WithNotifier(n))
	r, err := svc.CreateRun(context.Background(), "proj_1", "")
	if err != nil {
		t.Fatalf("CreateRun should ignore notifier errors, got %v", err)
	}
	if len(n.runs) != 1 || n.runs[0] != "proj_1/"+r.ID {
		t.Errorf("notified = %v", n.runs)
	}
}

func TestCreateRun_HangingSlackWebhookIsCutOff(t *testing.T) {
	release := make(chan struct{})
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer hook.Close()
	defer close(release)

	st := newTestStore(t)
	svc := NewService(st, respond(`[]`),
		WithNotifier(notify.NewSlack(hook.URL, time.Minute)),
		WithNotifyTimeout(100*time.Millisecond))

	type result struct {
		r   *models.Run
		err error
	}
	done := make(chan result, 1)
	go func() {
		r, err := svc.CreateRun(context.Background(), "proj_1", "service")
		done <- result{r, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("CreateRun: %v", res.err)
		}
		if _, _, err := svc.GetRun(context.Background(), "proj_1", res.r.ID); err != nil {
			t.Errorf("run not committed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("CreateRun still blocked on a hanging Slack webhook")
	}
}

func TestWithNotifyTimeout_IgnoresNonPositive(t *testing.T) {
	svc := NewService(newTestStore(t), respond(`[]`), WithNotifyTimeout(0))
	if svc.notifyTimeout != DefaultNotifyTimeout {
		t.Errorf("notifyTimeout = %v, want default %v", svc.notifyTimeout, DefaultNotifyTimeout)
	}
}

func TestCreateRun_ConcurrentRunsAllPersisted(t *testing.T) {
	st := newTestStore(t)
	// The backend blocks until every caller has read the document, forcing
	// the read-modify-write cycles to overlap.
	const callers = 4
	var arrived sync.WaitGroup
	arrived.Add(callers)
	backend := migration.BackendFunc(func(ctx context.Context, req migration.Request) (any, error) {
		arrived.Done()
		arrived.Wait()
		return normalize.Decode([]byte(`[{"path":"x"}]`))
	})
	svc := NewService(st, backend)

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateRun(context.Background(), "proj_1", "service")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}

	runs, err := svc.ListRuns(context.Background(), "proj_1")
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != callers {
		t.Errorf("runs = %d, want %d (lost update)", len(runs), callers)
	}
	doc, _ := st.Read(context.Background())
	if len(doc.Files) != callers {
		t.Errorf("files = %d, want %d", len(doc.Files), callers)
	}
}

func TestListRuns_ProjectNotFound(t *testing.T) {
	svc := NewService(newTestStore(t), respond(`[]`))
	_, err := svc.ListRuns(context.Background(), "proj_nope")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("error = %v, want not_found", err)
	}
}

func TestGetRun_EnforcesOwnership(t *testing.T) {
	st := newTestStore(t,
		models.Project{ID: "proj_1", Name: "one", RepoURL: "r1", Status: models.ProjectNotAnalyzed},
		models.Project{ID: "proj_2", Name: "two", RepoURL: "r2", Status: models.ProjectNotAnalyzed},
	)
	svc := NewService(st, respond(`[{"path":"a"}]`))
	r, err := svc.CreateRun(context.Background(), "proj_1", "")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	_, _, err = svc.GetRun(context.Background(), "proj_2", r.ID)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("GetRun under wrong project error = %v, want not_found", err)
	}
	_, _, err = svc.GetRun(context.Background(), "proj_1", "run_missing")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("GetRun missing error = %v, want not_found", err)
	}
}

func TestCollapse(t *testing.T) {
	got := collapse("run_1", Outcome{Err: errors.New("down")})
	if len(got) != 1 || got[0] != FallbackDraft() {
		t.Errorf("collapse(failure) = %+v, want fallback", got)
	}
	ok := []normalize.Draft{{Path: "a"}}
	if got := collapse("run_1", Outcome{Drafts: ok, Shape: normalize.ShapeArray}); len(got) != 1 || got[0].Path != "a" {
		t.Errorf("collapse(success) = %+v", got)
	}
	if got := collapse("run_1", Outcome{Drafts: []normalize.Draft{}}); len(got) != 0 {
		t.Errorf("collapse(empty) = %+v, want empty", got)
	}
}
