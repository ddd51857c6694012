// Package commit is the commit graph engine. It appends immutable commits to
// a task's graph, links parent edges, and advances branch heads, all inside
// one transaction per operation.
package commit

import (
	"context"
	"fmt"
	"strings"

	"github.com/zulandar/mimir/internal/branch"
	"github.com/zulandar/mimir/internal/db"
	"github.com/zulandar/mimir/internal/errs"
	"github.com/zulandar/mimir/internal/logging"
	"github.com/zulandar/mimir/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MinPrefix is the shortest id prefix Resolve accepts.
const MinPrefix = 4

// CreateOpts holds parameters for an ordinary commit.
type CreateOpts struct {
	TaskID        string
	Branch        string
	Message       string
	Context       string
	Author        string
	CognitiveLoad *int
	Uncertainty   *int
}

// MergeOpts holds parameters for a merge commit. Context is stored as given;
// no attempt is made to combine the two parents' contexts.
type MergeOpts struct {
	TaskID         string
	TargetBranch   string
	SourceCommitID string
	Message        string
	Context        string
	Author         string
}

// Create appends a commit to a branch. The previous head, if any, becomes
// the new commit's only parent and the branch head moves to the new commit.
// If another writer advanced the branch in the meantime nothing is written
// and the error matches errs.ErrConflict.
func Create(ctx context.Context, gdb *gorm.DB, opts CreateOpts) (*models.Commit, error) {
	c := models.Commit{
		ID:            models.NewCommitID(),
		TaskID:        opts.TaskID,
		Message:       strings.TrimSpace(opts.Message),
		FullContext:   opts.Context,
		Author:        opts.Author,
		CognitiveLoad: opts.CognitiveLoad,
		Uncertainty:   opts.Uncertainty,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	err := db.WithTx(ctx, gdb, func(tx *gorm.DB) error {
		if err := ensureTask(tx, opts.TaskID); err != nil {
			return err
		}
		b, err := branch.GetTx(tx, opts.TaskID, opts.Branch)
		if err != nil {
			return err
		}
		if err := tx.Create(&c).Error; err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		if b.HeadCommitID != nil {
			if err := link(tx, &c, *b.HeadCommitID); err != nil {
				return err
			}
		}
		return branch.AdvanceHead(tx, b.ID, b.HeadCommitID, c.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	logging.Infof("commit: %s on %q by %s", c.ShortID(), opts.Branch, c.Author)
	return &c, nil
}

// Merge records a merge commit on the target branch whose parents are the
// target's current head and the source commit. The target must already have
// a head and the source must belong to the same task.
func Merge(ctx context.Context, gdb *gorm.DB, opts MergeOpts) (*models.Commit, error) {
	c := models.Commit{
		ID:          models.NewCommitID(),
		TaskID:      opts.TaskID,
		Message:     strings.TrimSpace(opts.Message),
		FullContext: opts.Context,
		Author:      opts.Author,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	err := db.WithTx(ctx, gdb, func(tx *gorm.DB) error {
		if err := ensureTask(tx, opts.TaskID); err != nil {
			return err
		}
		target, err := branch.GetTx(tx, opts.TaskID, opts.TargetBranch)
		if err != nil {
			return err
		}
		if target.HeadCommitID == nil {
			return errs.Forbidden("branch %q has no commits to merge into", target.Name)
		}
		if *target.HeadCommitID == opts.SourceCommitID {
			return errs.InvalidReference("commit %s is already the head of %q", models.ShortID(opts.SourceCommitID), target.Name)
		}

		if err := tx.Create(&c).Error; err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		if err := link(tx, &c, *target.HeadCommitID); err != nil {
			return err
		}
		if err := link(tx, &c, opts.SourceCommitID); err != nil {
			return fmt.Errorf("source: %w", err)
		}
		return branch.AdvanceHead(tx, target.ID, target.HeadCommitID, c.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("commit: merge: %w", err)
	}
	logging.Infof("commit: merged %s into %q as %s", models.ShortID(opts.SourceCommitID), opts.TargetBranch, c.ShortID())
	return &c, nil
}

// Get returns the commit with the given id, or nil with a nil error when no
// such commit exists.
func Get(ctx context.Context, gdb *gorm.DB, id string) (*models.Commit, error) {
	var c models.Commit
	if err := gdb.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("commit: get %s: %w", id, err)
	}
	return &c, nil
}

// Parents returns the direct parents of a commit, oldest first.
func Parents(ctx context.Context, gdb *gorm.DB, id string) ([]models.Commit, error) {
	tx := gdb.WithContext(ctx)
	var count int64
	if err := tx.Model(&models.Commit{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("commit: check %s: %w", id, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("commit: %w", errs.NotFound("commit %s", id))
	}

	var parents []models.Commit
	if err := tx.
		Joins("JOIN commit_parents ON commit_parents.parent_id = commits.id").
		Where("commit_parents.child_id = ?", id).
		Order("commits.created_at ASC, commits.id ASC").
		Find(&parents).Error; err != nil {
		return nil, fmt.Errorf("commit: parents of %s: %w", id, err)
	}
	return parents, nil
}

// ListForTask returns every commit of a task, oldest first.
func ListForTask(ctx context.Context, gdb *gorm.DB, taskID string) ([]models.Commit, error) {
	var commits []models.Commit
	if err := gdb.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at ASC, id ASC").
		Find(&commits).Error; err != nil {
		return nil, fmt.Errorf("commit: list for %s: %w", taskID, err)
	}
	return commits, nil
}

// Resolve finds a commit by full id or unique id prefix. A non-empty taskID
// limits the search to that task. An ambiguous prefix is an invalid
// reference; a prefix that matches nothing is also not found.
func Resolve(ctx context.Context, gdb *gorm.DB, taskID, ref string) (*models.Commit, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if len(ref) < MinPrefix {
		return nil, fmt.Errorf("commit: %w", errs.InvalidReference("commit reference %q is shorter than %d characters", ref, MinPrefix))
	}
	if strings.Trim(ref, "0123456789abcdef-") != "" {
		return nil, fmt.Errorf("commit: %w", errs.InvalidReference("commit reference %q is not an id", ref))
	}

	q := gdb.WithContext(ctx).Model(&models.Commit{})
	if taskID != "" {
		q = q.Where("task_id = ?", taskID)
	}
	var matches []models.Commit
	if err := q.Where("id = ? OR id LIKE ?", ref, ref+"%").Order("id ASC").Limit(2).Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("commit: resolve %q: %w", ref, err)
	}
	switch {
	case len(matches) == 0:
		return nil, fmt.Errorf("commit: %w", errs.UnresolvedReference("commit %q", ref))
	case len(matches) > 1 && matches[0].ID != ref:
		return nil, fmt.Errorf("commit: %w", errs.InvalidReference("commit prefix %q is ambiguous", ref))
	}
	return &matches[0], nil
}

func ensureTask(tx *gorm.DB, taskID string) error {
	var count int64
	if err := tx.Model(&models.Task{}).Where("id = ?", taskID).Count(&count).Error; err != nil {
		return fmt.Errorf("check task %s: %w", taskID, err)
	}
	if count == 0 {
		return errs.NotFound("task %s", taskID)
	}
	return nil
}

// link inserts the edge child -> parentID after checking that the parent
// exists and lives in the child's task.
func link(tx *gorm.DB, child *models.Commit, parentID string) error {
	var parent models.Commit
	if err := tx.Select("id", "task_id").Where("id = ?", parentID).First(&parent).Error; err != nil {
		if db.IsNotFound(err) {
			return errs.UnresolvedReference("commit %s", parentID)
		}
		return fmt.Errorf("check parent %s: %w", parentID, err)
	}
	if parent.TaskID != child.TaskID {
		return errs.InvalidReference("commit %s belongs to another task", parentID)
	}
	edge := models.CommitParent{ChildID: child.ID, ParentID: parentID}
	if err := tx.Omit(clause.Associations).Create(&edge).Error; err != nil {
		return fmt.Errorf("link %s -> %s: %w", child.ShortID(), models.ShortID(parentID), err)
	}
	return nil
}
