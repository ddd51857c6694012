package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/mimir/internal/branch"
	"github.com/zulandar/mimir/internal/commit"
	"github.com/zulandar/mimir/internal/db"
	"github.com/zulandar/mimir/internal/errs"
	"github.com/zulandar/mimir/internal/models"
	"github.com/zulandar/mimir/internal/project"
	"github.com/zulandar/mimir/internal/task"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	db      *gorm.DB
	router  *gin.Engine
	project *models.Project
	task    *models.Task
}

func setup(t *testing.T) *fixture {
	t.Helper()
	gdb, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	ctx := context.Background()
	p, err := project.Create(ctx, gdb, "P", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	tk, err := task.Create(ctx, gdb, task.CreateOpts{ProjectID: p.ID, Name: "T1"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return &fixture{db: gdb, router: NewRouter(gdb, "server"), project: p, task: tk}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestStart_NilDB(t *testing.T) {
	err := Start(context.Background(), StartOpts{DB: nil})
	if err == nil {
		t.Fatal("expected error for nil db")
	}
	if !strings.Contains(err.Error(), "db is required") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db is required")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errs.NotFound("x"), http.StatusNotFound},
		{errs.Duplicate("x"), http.StatusConflict},
		{errs.Conflict("x"), http.StatusConflict},
		{errs.Forbidden("x"), http.StatusForbidden},
		{errs.InvalidReference("x"), http.StatusUnprocessableEntity},
		{errs.UnresolvedReference("x"), http.StatusUnprocessableEntity},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHealthz(t *testing.T) {
	f := setup(t)
	w := f.do(t, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestListProjectsAndTree(t *testing.T) {
	f := setup(t)
	if _, err := project.Create(context.Background(), f.db, "child", f.project.ID); err != nil {
		t.Fatal(err)
	}

	w := f.do(t, http.MethodGet, "/api/projects", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var projects []models.Project
	decode(t, w, &projects)
	if len(projects) != 2 {
		t.Errorf("got %d projects, want 2", len(projects))
	}

	w = f.do(t, http.MethodGet, "/api/projects/"+f.project.ID+"/tree", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var tree project.Node
	decode(t, w, &tree)
	if tree.Name != "P" || len(tree.Children) != 1 {
		t.Errorf("tree = %+v", tree)
	}

	w = f.do(t, http.MethodGet, "/api/projects/missing/tree", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing tree status = %d, want 404", w.Code)
	}
}

func TestListTasks(t *testing.T) {
	f := setup(t)
	if _, err := commit.Create(context.Background(), f.db, commit.CreateOpts{TaskID: f.task.ID, Branch: "main", Message: "m", Author: "a"}); err != nil {
		t.Fatal(err)
	}

	w := f.do(t, http.MethodGet, "/api/tasks?project="+f.project.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var tasks []struct {
		Name        string `json:"name"`
		CommitCount int64  `json:"commit_count"`
	}
	decode(t, w, &tasks)
	if len(tasks) != 1 || tasks[0].Name != "T1" || tasks[0].CommitCount != 1 {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestListBranches(t *testing.T) {
	f := setup(t)
	w := f.do(t, http.MethodGet, "/api/tasks/"+f.task.ID+"/branches", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var branches []models.Branch
	decode(t, w, &branches)
	if len(branches) != 1 || branches[0].Name != "main" || branches[0].HeadCommitID != nil {
		t.Errorf("branches = %+v", branches)
	}

	w = f.do(t, http.MethodGet, "/api/tasks/missing/branches", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing task status = %d, want 404", w.Code)
	}
}

func TestCommitAndHistory(t *testing.T) {
	f := setup(t)
	base := "/api/tasks/" + f.task.ID + "/branches/main"

	w := f.do(t, http.MethodPost, base+"/commits", `{"message":"init","context":"hello","cognitive_load":3}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var c1 models.Commit
	decode(t, w, &c1)
	if c1.Author != "server" {
		t.Errorf("author = %q, want server default", c1.Author)
	}
	if c1.CognitiveLoad == nil || *c1.CognitiveLoad != 3 {
		t.Errorf("cognitive_load = %v", c1.CognitiveLoad)
	}

	w = f.do(t, http.MethodPost, base+"/commits", `{"message":"second","author":"ada"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var c2 models.Commit
	decode(t, w, &c2)

	w = f.do(t, http.MethodGet, base+"/history?limit=10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d: %s", w.Code, w.Body.String())
	}
	var hist []commit.Entry
	decode(t, w, &hist)
	if len(hist) != 2 || hist[0].ID != c2.ID || hist[1].ID != c1.ID || hist[1].Depth != 1 {
		t.Errorf("history = %+v", hist)
	}

	w = f.do(t, http.MethodGet, "/api/commits/"+c2.ID+"/parents", "")
	var parents []models.Commit
	decode(t, w, &parents)
	if len(parents) != 1 || parents[0].ID != c1.ID {
		t.Errorf("parents = %+v", parents)
	}

	w = f.do(t, http.MethodGet, "/api/commits/"+c1.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got models.Commit
	decode(t, w, &got)
	if got.FullContext != "hello" {
		t.Errorf("full_context = %q", got.FullContext)
	}
}

func TestHistory_EmptyAndBadLimit(t *testing.T) {
	f := setup(t)
	base := "/api/tasks/" + f.task.ID + "/branches/main/history"

	w := f.do(t, http.MethodGet, base, "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("empty history = %d %q", w.Code, w.Body.String())
	}
	w = f.do(t, http.MethodGet, base+"?limit=zero", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", w.Code)
	}
	w = f.do(t, http.MethodGet, "/api/tasks/"+f.task.ID+"/branches/ghost/history", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing branch status = %d, want 404", w.Code)
	}
}

func TestCreateCommit_Errors(t *testing.T) {
	f := setup(t)
	w := f.do(t, http.MethodPost, "/api/tasks/"+f.task.ID+"/branches/main/commits", `{"context":"no message"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing message status = %d, want 400", w.Code)
	}
	w = f.do(t, http.MethodPost, "/api/tasks/"+f.task.ID+"/branches/ghost/commits", `{"message":"m"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing branch status = %d, want 404", w.Code)
	}
}

func TestMerge(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c1, err := commit.Create(ctx, f.db, commit.CreateOpts{TaskID: f.task.ID, Branch: "main", Message: "one", Author: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := branch.Create(ctx, f.db, f.task.ID, "feature", c1.ID); err != nil {
		t.Fatal(err)
	}
	c2, err := commit.Create(ctx, f.db, commit.CreateOpts{TaskID: f.task.ID, Branch: "feature", Message: "two", Author: "a"})
	if err != nil {
		t.Fatal(err)
	}

	w := f.do(t, http.MethodPost, "/api/tasks/"+f.task.ID+"/branches/main/merge",
		`{"source":"`+c2.ShortID()+`","message":"merge feature"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("merge status = %d: %s", w.Code, w.Body.String())
	}
	var merged models.Commit
	decode(t, w, &merged)
	parents, err := commit.Parents(ctx, f.db, merged.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(parents) != 2 {
		t.Errorf("merge has %d parents, want 2", len(parents))
	}

	w = f.do(t, http.MethodPost, "/api/tasks/"+f.task.ID+"/branches/main/merge",
		`{"source":"ffffffff","message":"bad"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown source status = %d, want 422", w.Code)
	}
}

func TestGetCommit_NotFound(t *testing.T) {
	f := setup(t)
	w := f.do(t, http.MethodGet, "/api/commits/missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	w = f.do(t, http.MethodGet, "/api/commits/missing/parents", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("parents status = %d, want 404", w.Code)
	}
}

func TestAncestors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	var last *models.Commit
	for _, msg := range []string{"one", "two", "three"} {
		c, err := commit.Create(ctx, f.db, commit.CreateOpts{TaskID: f.task.ID, Branch: "main", Message: msg, Author: "a"})
		if err != nil {
			t.Fatal(err)
		}
		last = c
	}

	w := f.do(t, http.MethodGet, "/api/commits/"+last.ID+"/ancestors?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var entries []commit.Entry
	decode(t, w, &entries)
	if len(entries) != 2 || entries[0].Message != "three" || entries[1].Message != "two" {
		t.Errorf("ancestors = %+v", entries)
	}
	if entries[1].Depth != 1 {
		t.Errorf("depth = %d, want 1", entries[1].Depth)
	}

	w = f.do(t, http.MethodGet, "/api/commits/missing/ancestors", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", w.Code)
	}
	w = f.do(t, http.MethodGet, "/api/commits/"+last.ID+"/ancestors?limit=x", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", w.Code)
	}
}
