package commit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/mimir/internal/branch"
	"github.com/zulandar/mimir/internal/config"
	"github.com/zulandar/mimir/internal/db"
	"github.com/zulandar/mimir/internal/errs"
	"github.com/zulandar/mimir/internal/models"
	"github.com/zulandar/mimir/internal/project"
	"github.com/zulandar/mimir/internal/task"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return gdb
}

func seedTask(t *testing.T, gdb *gorm.DB, projectName, taskName string) *models.Task {
	t.Helper()
	ctx := context.Background()
	p, err := project.GetByName(ctx, gdb, projectName)
	if err != nil {
		p, err = project.Create(ctx, gdb, projectName, "")
		if err != nil {
			t.Fatalf("create project: %v", err)
		}
	}
	tk, err := task.Create(ctx, gdb, task.CreateOpts{ProjectID: p.ID, Name: taskName})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return tk
}

func mustCommit(t *testing.T, gdb *gorm.DB, taskID, branchName, msg string) *models.Commit {
	t.Helper()
	c, err := Create(context.Background(), gdb, CreateOpts{
		TaskID:  taskID,
		Branch:  branchName,
		Message: msg,
		Context: "context of " + msg,
		Author:  "tester",
	})
	if err != nil {
		t.Fatalf("commit %q: %v", msg, err)
	}
	return c
}

func headOf(t *testing.T, gdb *gorm.DB, taskID, name string) string {
	t.Helper()
	b, err := branch.Get(context.Background(), gdb, taskID, name)
	if err != nil {
		t.Fatalf("get branch %s: %v", name, err)
	}
	return b.Head()
}

func parentIDs(t *testing.T, gdb *gorm.DB, id string) map[string]bool {
	t.Helper()
	parents, err := Parents(context.Background(), gdb, id)
	if err != nil {
		t.Fatalf("Parents(%s): %v", id, err)
	}
	out := map[string]bool{}
	for _, p := range parents {
		out[p.ID] = true
	}
	return out
}

func TestScenario_BranchCommitMerge(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()
	tk := seedTask(t, gdb, "P", "T1")

	if h := headOf(t, gdb, tk.ID, "main"); h != "" {
		t.Fatalf("new main head = %q, want empty", h)
	}

	c1, err := Create(ctx, gdb, CreateOpts{TaskID: tk.ID, Branch: "main", Message: "init", Context: "hello", Author: "tester"})
	if err != nil {
		t.Fatalf("commit c1: %v", err)
	}
	if h := headOf(t, gdb, tk.ID, "main"); h != c1.ID {
		t.Fatalf("main head = %q, want c1", h)
	}
	hist, err := History(ctx, gdb, tk.ID, "main", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 || hist[0].ID != c1.ID {
		t.Fatalf("history = %v, want [c1]", ids(hist))
	}

	if _, err := branch.CreateFromBranch(ctx, gdb, tk.ID, "feature", "main"); err != nil {
		t.Fatalf("create feature: %v", err)
	}
	if h := headOf(t, gdb, tk.ID, "feature"); h != c1.ID {
		t.Fatalf("feature head = %q, want c1", h)
	}

	c2 := mustCommit(t, gdb, tk.ID, "feature", "feature work")
	if h := headOf(t, gdb, tk.ID, "feature"); h != c2.ID {
		t.Fatalf("feature head = %q, want c2", h)
	}
	if p := parentIDs(t, gdb, c2.ID); len(p) != 1 || !p[c1.ID] {
		t.Fatalf("parents(c2) = %v, want {c1}", p)
	}

	c3, err := Merge(ctx, gdb, MergeOpts{
		TaskID:         tk.ID,
		TargetBranch:   "main",
		SourceCommitID: c2.ID,
		Message:        "merge feature",
		Author:         "tester",
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if p := parentIDs(t, gdb, c3.ID); len(p) != 2 || !p[c1.ID] || !p[c2.ID] {
		t.Fatalf("parents(c3) = %v, want {c1, c2}", p)
	}
	if h := headOf(t, gdb, tk.ID, "main"); h != c3.ID {
		t.Fatalf("main head = %q, want c3", h)
	}

	hist, err = History(ctx, gdb, tk.ID, "main", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if want := []string{c3.ID, c2.ID, c1.ID}; !equalIDs(ids(hist), want) {
		t.Errorf("history = %v, want %v", ids(hist), want)
	}
}

func TestCreate_NCommitsNewestFirst(t *testing.T) {
	gdb := openTestDB(t)
	tk := seedTask(t, gdb, "P", "T1")

	const n = 6
	var want []string
	for i := 0; i < n; i++ {
		c := mustCommit(t, gdb, tk.ID, "main", "step")
		want = append([]string{c.ID}, want...)
	}

	hist, err := History(context.Background(), gdb, tk.ID, "main", n)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if !equalIDs(ids(hist), want) {
		t.Errorf("history = %v, want %v", ids(hist), want)
	}

	short, err := History(context.Background(), gdb, tk.ID, "main", 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if !equalIDs(ids(short), want[:2]) {
		t.Errorf("limited history = %v, want %v", ids(short), want[:2])
	}
}

func TestCreate_FirstCommitHasNoParents(t *testing.T) {
	gdb := openTestDB(t)
	tk := seedTask(t, gdb, "P", "T1")
	c := mustCommit(t, gdb, tk.ID, "main", "root")

	if p := parentIDs(t, gdb, c.ID); len(p) != 0 {
		t.Errorf("parents = %v, want none", p)
	}
}

func TestCreate_Errors(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()
	tk := seedTask(t, gdb, "P", "T1")

	tests := []struct {
		name string
		opts CreateOpts
		want error
	}{
		{"missing task", CreateOpts{TaskID: "nope", Branch: "main", Message: "m", Author: "a"}, errs.ErrNotFound},
		{"missing branch", CreateOpts{TaskID: tk.ID, Branch: "ghost", Message: "m", Author: "a"}, errs.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Create(ctx, gdb, tt.opts); !errors.Is(err, tt.want) {
				t.Errorf("Create() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := Create(ctx, gdb, CreateOpts{TaskID: tk.ID, Branch: "main", Author: "a"}); err == nil {
		t.Error("expected error for empty message")
	}

	var count int64
	gdb.Model(&models.Commit{}).Count(&count)
	if count != 0 {
		t.Errorf("commit count = %d after failed creates, want 0", count)
	}
}

func TestCreate_StoresMetrics(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()
	tk := seedTask(t, gdb, "P", "T1")
	load, unc := 7, 3

	c, err := Create(ctx, gdb, CreateOpts{
		TaskID: tk.ID, Branch: "main", Message: "m", Context: "body", Author: "ada",
		CognitiveLoad: &load, Uncertainty: &unc,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := Get(ctx, gdb, c.ID)
	if err != nil || got == nil {
		t.Fatalf("Get: %v, %v", got, err)
	}
	if got.CognitiveLoad == nil || *got.CognitiveLoad != 7 {
		t.Errorf("CognitiveLoad = %v, want 7", got.CognitiveLoad)
	}
	if got.Uncertainty == nil || *got.Uncertainty != 3 {
		t.Errorf("Uncertainty = %v, want 3", got.Uncertainty)
	}
	if got.FullContext != "body" || got.Author != "ada" {
		t.Errorf("got context %q author %q", got.FullContext, got.Author)
	}
}

func TestCreate_StaleHeadConflict(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()
	tk := seedTask(t, gdb, "P", "T1")
	c1 := mustCommit(t, gdb, tk.ID, "main", "one")

	main, err := branch.Get(ctx, gdb, tk.ID, "main")
	if err != nil {
		t.Fatalf("Get main: %v", err)
	}

	// Simulate a writer that read the head before c1 landed.
	err = db.WithTx(ctx, gdb, func(tx *gorm.DB) error {
		late := models.Commit{ID: models.NewCommitID(), TaskID: tk.ID, Message: "late", Author: "b"}
		if err := tx.Create(&late).Error; err != nil {
			return err
		}
		return branch.AdvanceHead(tx, main.ID, nil, late.ID)
	})
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("stale writer error = %v, want ErrConflict", err)
	}

	if h := headOf(t, gdb, tk.ID, "main"); h != c1.ID {
		t.Errorf("head = %q, want c1", h)
	}
	var count int64
	gdb.Model(&models.Commit{}).Where("message = ?", "late").Count(&count)
	if count != 0 {
		t.Errorf("late commit persisted after conflict")
	}
}

func TestMerge_Errors(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()
	tk := seedTask(t, gdb, "P", "T1")
	other := seedTask(t, gdb, "P", "T2")
	if _, err := branch.Create(ctx, gdb, tk.ID, "empty", ""); err != nil {
		t.Fatalf("create empty branch: %v", err)
	}
	c1 := mustCommit(t, gdb, tk.ID, "main", "one")
	foreign := mustCommit(t, gdb, other.ID, "main", "elsewhere")

	tests := []struct {
		name   string
		target string
		source string
		want   []error
	}{
		{"missing target", "ghost", c1.ID, []error{errs.ErrNotFound}},
		{"empty target", "empty", c1.ID, []error{errs.ErrForbidden}},
		{"unknown source", "main", "00000000-0000-0000-0000-000000000000", []error{errs.ErrInvalidReference, errs.ErrNotFound}},
		{"source from other task", "main", foreign.ID, []error{errs.ErrInvalidReference}},
		{"source is target head", "main", c1.ID, []error{errs.ErrInvalidReference}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Merge(ctx, gdb, MergeOpts{
				TaskID: tk.ID, TargetBranch: tt.target, SourceCommitID: tt.source,
				Message: "merge", Author: "tester",
			})
			for _, want := range tt.want {
				if !errors.Is(err, want) {
					t.Errorf("Merge() error = %v, want %v", err, want)
				}
			}
		})
	}

	if h := headOf(t, gdb, tk.ID, "main"); h != c1.ID {
		t.Errorf("main head moved to %q after failed merges", h)
	}
	commits, _ := ListForTask(ctx, gdb, tk.ID)
	if len(commits) != 1 {
		t.Errorf("task has %d commits after failed merges, want 1", len(commits))
	}
}

func TestMerge_KeepsContext(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()
	tk := seedTask(t, gdb, "P", "T1")
	mustCommit(t, gdb, tk.ID, "main", "one")
	if _, err := branch.CreateFromBranch(ctx, gdb, tk.ID, "side", "main"); err != nil {
		t.Fatalf("fork: %v", err)
	}
	c2 := mustCommit(t, gdb, tk.ID, "side", "two")

	m, err := Merge(ctx, gdb, MergeOpts{
		TaskID: tk.ID, TargetBranch: "main", SourceCommitID: c2.ID,
		Message: "merge side", Context: "combined notes", Author: "tester",
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if m.FullContext != "combined notes" {
		t.Errorf("FullContext = %q", m.FullContext)
	}
}

func TestHistory_DiamondDedup(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()
	tk := seedTask(t, gdb, "P", "T1")

	base := mustCommit(t, gdb, tk.ID, "main", "base")
	if _, err := branch.CreateFromBranch(ctx, gdb, tk.ID, "side", "main"); err != nil {
		t.Fatalf("fork: %v", err)
	}
	left := mustCommit(t, gdb, tk.ID, "main", "left")
	right := mustCommit(t, gdb, tk.ID, "side", "right")
	m, err := Merge(ctx, gdb, MergeOpts{TaskID: tk.ID, TargetBranch: "main", SourceCommitID: right.ID, Message: "merge", Author: "tester"})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	hist, err := History(ctx, gdb, tk.ID, "main", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if want := []string{m.ID, right.ID, left.ID, base.ID}; !equalIDs(ids(hist), want) {
		t.Errorf("history = %v, want %v", ids(hist), want)
	}
}

func TestHistory_EmptyBranch(t *testing.T) {
	gdb := openTestDB(t)
	tk := seedTask(t, gdb, "P", "T1")
	hist, err := History(context.Background(), gdb, tk.ID, "main", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 0 {
		t.Errorf("got %d entries, want 0", len(hist))
	}
}

func TestHistory_MissingBranch(t *testing.T) {
	gdb := openTestDB(t)
	tk := seedTask(t, gdb, "P", "T1")
	if _, err := History(context.Background(), gdb, tk.ID, "ghost", 10); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("History() error = %v, want ErrNotFound", err)
	}
}

func TestAncestors(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()
	tk := seedTask(t, gdb, "P", "T1")
	c1 := mustCommit(t, gdb, tk.ID, "main", "one")
	c2 := mustCommit(t, gdb, tk.ID, "main", "two")
	mustCommit(t, gdb, tk.ID, "main", "three")

	got, err := Ancestors(ctx, gdb, c2.ID, 0)
	if err != nil {
		t.Fatalf("Ancestors: %v", err)
	}
	if want := []string{c2.ID, c1.ID}; !equalIDs(ids(got), want) {
		t.Errorf("Ancestors = %v, want %v", ids(got), want)
	}
	if _, err := Ancestors(ctx, gdb, "missing", 0); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Ancestors(missing) = %v, want ErrNotFound", err)
	}
}

func TestGet_IdempotentAndMissing(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()
	tk := seedTask(t, gdb, "P", "T1")
	c := mustCommit(t, gdb, tk.ID, "main", "one")

	a, err := Get(ctx, gdb, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, err := Get(ctx, gdb, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.ID != b.ID || a.Message != b.Message || a.FullContext != b.FullContext || !a.CreatedAt.Equal(b.CreatedAt) {
		t.Errorf("two reads differ: %+v vs %+v", a, b)
	}

	missing, err := Get(ctx, gdb, "does-not-exist")
	if err != nil {
		t.Errorf("Get(missing) error = %v, want nil", err)
	}
	if missing != nil {
		t.Errorf("Get(missing) = %+v, want nil", missing)
	}
}

func TestParents_MissingCommit(t *testing.T) {
	gdb := openTestDB(t)
	if _, err := Parents(context.Background(), gdb, "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Parents() error = %v, want ErrNotFound", err)
	}
}

func TestListForTask_OldestFirst(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()
	tk := seedTask(t, gdb, "P", "T1")
	c1 := mustCommit(t, gdb, tk.ID, "main", "one")
	c2 := mustCommit(t, gdb, tk.ID, "main", "two")

	commits, err := ListForTask(ctx, gdb, tk.ID)
	if err != nil {
		t.Fatalf("ListForTask: %v", err)
	}
	if len(commits) != 2 || commits[0].ID != c1.ID || commits[1].ID != c2.ID {
		t.Errorf("ListForTask = %v, want [c1 c2]", commits)
	}
}

func TestResolve(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()
	tk := seedTask(t, gdb, "P", "T1")
	now := time.Now().UTC()
	for _, id := range []string{
		"abcd1111-0000-4000-8000-000000000001",
		"abcd2222-0000-4000-8000-000000000002",
	} {
		c := models.Commit{ID: id, TaskID: tk.ID, Message: "m", Author: "a", CreatedAt: now}
		if err := gdb.Create(&c).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	c, err := Resolve(ctx, gdb, tk.ID, "abcd1")
	if err != nil {
		t.Fatalf("Resolve(abcd1): %v", err)
	}
	if c.ID != "abcd1111-0000-4000-8000-000000000001" {
		t.Errorf("Resolve(abcd1) = %s", c.ID)
	}

	if c, err := Resolve(ctx, gdb, "", "ABCD2222-0000-4000-8000-000000000002"); err != nil || c.ID != "abcd2222-0000-4000-8000-000000000002" {
		t.Errorf("Resolve(full id) = %v, %v", c, err)
	}

	tests := []struct {
		name string
		ref  string
		task string
		want error
	}{
		{"ambiguous", "abcd", tk.ID, errs.ErrInvalidReference},
		{"too short", "abc", tk.ID, errs.ErrInvalidReference},
		{"wildcard", "abcd%", tk.ID, errs.ErrInvalidReference},
		{"no match", "ffff0000", tk.ID, errs.ErrNotFound},
		{"other task", "abcd1", "other-task", errs.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Resolve(ctx, gdb, tt.task, tt.ref); !errors.Is(err, tt.want) {
				t.Errorf("Resolve(%q) error = %v, want %v", tt.ref, err, tt.want)
			}
		})
	}
}

func TestCreate_ConcurrentWritersOnSQLiteFile(t *testing.T) {
	const writers, perWriter = 8, 10
	cfg := config.DatabaseConfig{Driver: config.DriverSQLite, DSN: filepath.Join(t.TempDir(), "mimir.db")}

	setupDB, err := db.Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.AutoMigrate(setupDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	tk := seedTask(t, setupDB, "P", "T1")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			handle, err := db.Open(cfg)
			if err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
				return
			}
			defer func() {
				if sqlDB, err := handle.DB(); err == nil {
					sqlDB.Close()
				}
			}()
			for i := 0; i < perWriter; i++ {
				_, err := Create(context.Background(), handle, CreateOpts{
					TaskID:  tk.ID,
					Branch:  "main",
					Message: fmt.Sprintf("writer %d commit %d", w, i),
					Author:  "tester",
				})
				mu.Lock()
				if err != nil {
					failures = append(failures, err)
				} else {
					succeeded++
				}
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	for _, err := range failures {
		if !errors.Is(err, errs.ErrConflict) {
			t.Errorf("writer failed with a non-retryable error: %v", err)
		}
	}
	if succeeded == 0 {
		t.Fatal("no commit succeeded")
	}
	entries, err := History(context.Background(), setupDB, tk.ID, "main", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != succeeded {
		t.Errorf("history has %d commits, %d succeeded", len(entries), succeeded)
	}
}
