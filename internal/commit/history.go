package commit

import (
	"context"
	"fmt"
	"sort"

	"github.com/zulandar/mimir/internal/branch"
	"github.com/zulandar/mimir/internal/db"
	"github.com/zulandar/mimir/internal/errs"
	"github.com/zulandar/mimir/internal/models"
	"gorm.io/gorm"
)

// Entry is one commit in a history walk, with its distance from the head.
type Entry struct {
	models.Commit
	Depth int `json:"depth"`
}

// EdgeSource is the storage the history walk reads from.
type EdgeSource interface {
	// ParentsOf returns the parent ids of each given commit id.
	ParentsOf(ctx context.Context, ids []string) (map[string][]string, error)
	// Commits loads the given commits. Ids with no stored commit are omitted.
	Commits(ctx context.Context, ids []string) ([]models.Commit, error)
}

// Walk follows parent edges backward from head, one depth level at a time.
// Commits at the same depth are ordered newest first. A commit reachable by
// several paths is emitted once, at the depth where it was first reached,
// which also bounds the walk when the edge set contains a cycle. limit <= 0
// returns the full ancestry.
func Walk(ctx context.Context, src EdgeSource, head string, limit int) ([]Entry, error) {
	var out []Entry
	if head == "" {
		return out, nil
	}

	seen := map[string]bool{head: true}
	frontier := []string{head}
	for depth := 0; len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		level, err := src.Commits(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("load depth %d: %w", depth, err)
		}
		sort.Slice(level, func(i, j int) bool {
			if !level[i].CreatedAt.Equal(level[j].CreatedAt) {
				return level[i].CreatedAt.After(level[j].CreatedAt)
			}
			return level[i].ID > level[j].ID
		})
		for _, c := range level {
			out = append(out, Entry{Commit: c, Depth: depth})
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}

		parents, err := src.ParentsOf(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("parents at depth %d: %w", depth, err)
		}
		var next []string
		for _, id := range frontier {
			for _, p := range parents[id] {
				if seen[p] {
					continue
				}
				seen[p] = true
				next = append(next, p)
			}
		}
		frontier = next
	}
	return out, nil
}

// History returns the commits reachable from a branch head, nearest first,
// stopping after limit commits. An empty branch has an empty history.
func History(ctx context.Context, gdb *gorm.DB, taskID, branchName string, limit int) ([]Entry, error) {
	var entries []Entry
	err := db.WithTx(ctx, gdb, func(tx *gorm.DB) error {
		if err := ensureTask(tx, taskID); err != nil {
			return err
		}
		b, err := branch.GetTx(tx, taskID, branchName)
		if err != nil {
			return err
		}
		entries, err = Walk(ctx, NewEdgeSource(tx), b.Head(), limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("commit: history of %q: %w", branchName, err)
	}
	return entries, nil
}

// Ancestors walks from an arbitrary commit rather than a branch head.
func Ancestors(ctx context.Context, gdb *gorm.DB, commitID string, limit int) ([]Entry, error) {
	c, err := Get(ctx, gdb, commitID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("commit: %w", errs.NotFound("commit %s", commitID))
	}
	entries, err := Walk(ctx, NewEdgeSource(gdb.WithContext(ctx)), c.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("commit: ancestors of %s: %w", c.ShortID(), err)
	}
	return entries, nil
}

// gormEdges reads commits and parent edges through GORM, one query per
// depth level for each.
type gormEdges struct {
	tx *gorm.DB
}

// NewEdgeSource returns an EdgeSource backed by the commits and
// commit_parents tables.
func NewEdgeSource(tx *gorm.DB) EdgeSource {
	return &gormEdges{tx: tx}
}

func (g *gormEdges) ParentsOf(ctx context.Context, ids []string) (map[string][]string, error) {
	var edges []models.CommitParent
	if err := g.tx.WithContext(ctx).Where("child_id IN ?", ids).Find(&edges).Error; err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(ids))
	for _, e := range edges {
		out[e.ChildID] = append(out[e.ChildID], e.ParentID)
	}
	return out, nil
}

func (g *gormEdges) Commits(ctx context.Context, ids []string) ([]models.Commit, error) {
	var commits []models.Commit
	if err := g.tx.WithContext(ctx).Where("id IN ?", ids).Find(&commits).Error; err != nil {
		return nil, err
	}
	return commits, nil
}
