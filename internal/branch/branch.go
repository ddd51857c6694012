// Package branch manages branch pointers into a task's commit graph.
package branch

import (
	"context"
	"fmt"
	"strings"

	"github.com/zulandar/mimir/internal/db"
	"github.com/zulandar/mimir/internal/errs"
	"github.com/zulandar/mimir/internal/logging"
	"github.com/zulandar/mimir/internal/models"
	"gorm.io/gorm"
)

// Create adds a branch to a task. A non-empty fromCommitID becomes the new
// branch's head; it must name a commit of the same task.
func Create(ctx context.Context, gdb *gorm.DB, taskID, name, fromCommitID string) (*models.Branch, error) {
	var b *models.Branch
	err := db.WithTx(ctx, gdb, func(tx *gorm.DB) error {
		var err error
		b, err = create(tx, taskID, name, fromCommitID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("branch: %w", err)
	}
	return b, nil
}

// CreateFromBranch forks name from the current head of fromBranch. Forking
// an empty branch yields another empty branch.
func CreateFromBranch(ctx context.Context, gdb *gorm.DB, taskID, name, fromBranch string) (*models.Branch, error) {
	var b *models.Branch
	err := db.WithTx(ctx, gdb, func(tx *gorm.DB) error {
		src, err := get(tx, taskID, fromBranch)
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
		b, err = create(tx, taskID, name, src.Head())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("branch: %w", err)
	}
	return b, nil
}

func create(tx *gorm.DB, taskID, name, fromCommitID string) (*models.Branch, error) {
	b := models.Branch{ID: models.NewID(), TaskID: taskID, Name: strings.TrimSpace(name)}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	var count int64
	if err := tx.Model(&models.Task{}).Where("id = ?", taskID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check task %s: %w", taskID, err)
	}
	if count == 0 {
		return nil, errs.NotFound("task %s", taskID)
	}

	if err := tx.Model(&models.Branch{}).Where("task_id = ? AND name = ?", taskID, b.Name).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check name %q: %w", b.Name, err)
	}
	if count > 0 {
		return nil, errs.Duplicate("branch %q already exists", b.Name)
	}

	if fromCommitID != "" {
		var c models.Commit
		if err := tx.Select("id", "task_id").Where("id = ?", fromCommitID).First(&c).Error; err != nil {
			if db.IsNotFound(err) {
				return nil, errs.UnresolvedReference("commit %s", fromCommitID)
			}
			return nil, fmt.Errorf("check commit %s: %w", fromCommitID, err)
		}
		if c.TaskID != taskID {
			return nil, errs.InvalidReference("commit %s belongs to another task", fromCommitID)
		}
		b.HeadCommitID = &fromCommitID
	}

	if err := tx.Create(&b).Error; err != nil {
		if db.IsDuplicate(err) {
			return nil, errs.Duplicate("branch %q already exists", b.Name)
		}
		return nil, fmt.Errorf("create: %w", err)
	}
	logging.Infof("branch: created %q for task %s at %s", b.Name, taskID, headLabel(b.HeadCommitID))
	return &b, nil
}

// Get returns the named branch of a task.
func Get(ctx context.Context, gdb *gorm.DB, taskID, name string) (*models.Branch, error) {
	b, err := get(gdb.WithContext(ctx), taskID, name)
	if err != nil {
		return nil, fmt.Errorf("branch: %w", err)
	}
	return b, nil
}

// GetTx is Get for callers already inside a transaction.
func GetTx(tx *gorm.DB, taskID, name string) (*models.Branch, error) {
	return get(tx, taskID, name)
}

// List returns all branches of a task, main first, then by name.
func List(ctx context.Context, gdb *gorm.DB, taskID string) ([]models.Branch, error) {
	var branches []models.Branch
	if err := gdb.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("CASE WHEN name = '" + models.MainBranch + "' THEN 0 ELSE 1 END, name ASC").
		Find(&branches).Error; err != nil {
		return nil, fmt.Errorf("branch: list for %s: %w", taskID, err)
	}
	return branches, nil
}

// Delete removes a branch record. Commits it pointed to are kept.
// The main branch can never be deleted.
func Delete(ctx context.Context, gdb *gorm.DB, taskID, name string) error {
	if name == models.MainBranch {
		return fmt.Errorf("branch: %w", errs.Forbidden("cannot delete %s branch", models.MainBranch))
	}
	result := gdb.WithContext(ctx).Where("task_id = ? AND name = ?", taskID, name).Delete(&models.Branch{})
	if result.Error != nil {
		return fmt.Errorf("branch: delete %q: %w", name, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("branch: %w", errs.NotFound("branch %q", name))
	}
	logging.Infof("branch: deleted %q from task %s", name, taskID)
	return nil
}

// Rename changes a branch's name within its task. Renaming main is refused
// because every task must keep a main branch.
func Rename(ctx context.Context, gdb *gorm.DB, taskID, oldName, newName string) (*models.Branch, error) {
	if oldName == models.MainBranch {
		return nil, fmt.Errorf("branch: %w", errs.Forbidden("cannot rename %s branch", models.MainBranch))
	}
	var b *models.Branch
	err := db.WithTx(ctx, gdb, func(tx *gorm.DB) error {
		var err error
		b, err = get(tx, taskID, oldName)
		if err != nil {
			return err
		}
		b.Name = strings.TrimSpace(newName)
		if err := b.Validate(); err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&models.Branch{}).Where("task_id = ? AND name = ?", taskID, b.Name).Count(&count).Error; err != nil {
			return fmt.Errorf("check name %q: %w", b.Name, err)
		}
		if count > 0 {
			return errs.Duplicate("branch %q already exists", b.Name)
		}
		if err := tx.Model(&models.Branch{}).Where("id = ?", b.ID).Update("name", b.Name).Error; err != nil {
			if db.IsDuplicate(err) {
				return errs.Duplicate("branch %q already exists", b.Name)
			}
			return fmt.Errorf("rename %q: %w", oldName, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("branch: %w", err)
	}
	logging.Infof("branch: renamed %q to %q", oldName, b.Name)
	return b, nil
}

// AdvanceHead moves a branch head from expected to next, but only if the
// head still equals expected (nil meaning "no commits"). When another writer
// moved the head first, nothing is written and an ErrConflict is returned.
func AdvanceHead(tx *gorm.DB, branchID string, expected *string, next string) error {
	q := tx.Model(&models.Branch{}).Where("id = ?", branchID)
	if expected == nil {
		q = q.Where("head_commit_id IS NULL")
	} else {
		q = q.Where("head_commit_id = ?", *expected)
	}
	result := q.Update("head_commit_id", next)
	if result.Error != nil {
		return fmt.Errorf("advance head of %s: %w", branchID, result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.Conflict("branch %s head moved from %s since it was read", branchID, headLabel(expected))
	}
	return nil
}

func get(tx *gorm.DB, taskID, name string) (*models.Branch, error) {
	var b models.Branch
	if err := tx.Where("task_id = ? AND name = ?", taskID, name).First(&b).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, errs.NotFound("branch %q", name)
		}
		return nil, fmt.Errorf("get %q: %w", name, err)
	}
	return &b, nil
}

func headLabel(id *string) string {
	if id == nil {
		return "<empty>"
	}
	return models.ShortID(*id)
}
