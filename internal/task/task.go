// Package task provides task lifecycle operations. Every task is created
// together with its "main" branch.
package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/mimir/internal/db"
	"github.com/zulandar/mimir/internal/errs"
	"github.com/zulandar/mimir/internal/logging"
	"github.com/zulandar/mimir/internal/models"
	"gorm.io/gorm"
)

// CreateOpts holds parameters for creating a new task.
type CreateOpts struct {
	ProjectID  string
	Name       string
	Author     string
	ExternalID string // optional reference into an outside tracker
}

// Stats summarizes the commits of one task.
type Stats struct {
	TaskID       string
	CommitCount  int64
	LastCommitAt *time.Time
}

// Create inserts a task and its empty main branch in one transaction.
func Create(ctx context.Context, gdb *gorm.DB, opts CreateOpts) (*models.Task, error) {
	t := models.Task{
		ID:        models.NewID(),
		ProjectID: opts.ProjectID,
		Name:      strings.TrimSpace(opts.Name),
	}
	if opts.ExternalID != "" {
		t.ExternalID = &opts.ExternalID
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("task: %w", err)
	}

	err := db.WithTx(ctx, gdb, func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.Where("id = ?", opts.ProjectID).First(&project).Error; err != nil {
			if db.IsNotFound(err) {
				return errs.NotFound("project %s", opts.ProjectID)
			}
			return fmt.Errorf("check project %s: %w", opts.ProjectID, err)
		}

		var count int64
		if err := tx.Model(&models.Task{}).Where("project_id = ? AND name = ?", opts.ProjectID, t.Name).Count(&count).Error; err != nil {
			return fmt.Errorf("check name %q: %w", t.Name, err)
		}
		if count > 0 {
			return errs.Duplicate("task %q already exists in project %q", t.Name, project.Name)
		}

		if err := tx.Create(&t).Error; err != nil {
			if db.IsDuplicate(err) {
				return errs.Duplicate("task %q already exists in project %q", t.Name, project.Name)
			}
			return fmt.Errorf("create: %w", err)
		}

		main := models.Branch{ID: models.NewID(), TaskID: t.ID, Name: models.MainBranch}
		if err := tx.Create(&main).Error; err != nil {
			return fmt.Errorf("create main branch: %w", err)
		}
		logging.Infof("task: created %q in project %q by %s (%s)", t.Name, project.Name, authorOrDefault(opts.Author), t.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("task: %w", err)
	}
	return &t, nil
}

// Get retrieves a task by id.
func Get(ctx context.Context, gdb *gorm.DB, id string) (*models.Task, error) {
	var t models.Task
	if err := gdb.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("task: %w", errs.NotFound("task %s", id))
		}
		return nil, fmt.Errorf("task: get %s: %w", id, err)
	}
	return &t, nil
}

// GetByName looks a task up by name across all projects. Names are only
// unique per project, so this is a best-effort lookup: the oldest match wins.
// Prefer GetInProject whenever a project is known.
func GetByName(ctx context.Context, gdb *gorm.DB, name string) (*models.Task, error) {
	var matches []models.Task
	if err := gdb.WithContext(ctx).Where("name = ?", name).Order("created_at ASC, id ASC").Limit(2).Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("task: get %q: %w", name, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("task: %w", errs.NotFound("task %q", name))
	}
	if len(matches) > 1 {
		logging.Warnf("task: name %q exists in several projects; using %s", name, matches[0].ID)
	}
	return &matches[0], nil
}

// GetInProject looks a task up by name within one project.
func GetInProject(ctx context.Context, gdb *gorm.DB, projectID, name string) (*models.Task, error) {
	var t models.Task
	if err := gdb.WithContext(ctx).Where("project_id = ? AND name = ?", projectID, name).First(&t).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("task: %w", errs.NotFound("task %q in project %s", name, projectID))
		}
		return nil, fmt.Errorf("task: get %q: %w", name, err)
	}
	return &t, nil
}

// Resolve finds a task by name, scoped to projectName when one is given.
func Resolve(ctx context.Context, gdb *gorm.DB, projectName, name string) (*models.Task, error) {
	if projectName == "" {
		return GetByName(ctx, gdb, name)
	}
	var p models.Project
	if err := gdb.WithContext(ctx).Where("name = ?", projectName).First(&p).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("task: %w", errs.NotFound("project %q", projectName))
		}
		return nil, fmt.Errorf("task: get project %q: %w", projectName, err)
	}
	return GetInProject(ctx, gdb, p.ID, name)
}

// List returns tasks ordered by name, optionally limited to one project.
func List(ctx context.Context, gdb *gorm.DB, projectID string) ([]models.Task, error) {
	q := gdb.WithContext(ctx).Model(&models.Task{})
	if projectID != "" {
		q = q.Where("project_id = ?", projectID)
	}
	var tasks []models.Task
	if err := q.Order("name ASC, created_at ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("task: list: %w", err)
	}
	return tasks, nil
}

// Delete removes a task with its branches, commits and parent edges.
// It reports false when the task does not exist.
func Delete(ctx context.Context, gdb *gorm.DB, id string) (bool, error) {
	found := true
	err := db.WithTx(ctx, gdb, func(tx *gorm.DB) error {
		err := DeleteOwned(tx, id)
		if errors.Is(err, errs.ErrNotFound) {
			found = false
			return nil
		}
		return err
	})
	if err != nil {
		return false, fmt.Errorf("task: %w", err)
	}
	return found, nil
}

// DeleteOwned deletes a task and everything it owns using tx, which must
// already be a transaction. Branches go first because they point at commits.
func DeleteOwned(tx *gorm.DB, id string) error {
	var t models.Task
	if err := tx.Where("id = ?", id).First(&t).Error; err != nil {
		if db.IsNotFound(err) {
			return errs.NotFound("task %s", id)
		}
		return fmt.Errorf("get %s: %w", id, err)
	}

	commitIDs := tx.Model(&models.Commit{}).Select("id").Where("task_id = ?", id)
	if err := tx.Where("task_id = ?", id).Delete(&models.Branch{}).Error; err != nil {
		return fmt.Errorf("delete branches of %s: %w", id, err)
	}
	if err := tx.Where("child_id IN (?) OR parent_id IN (?)", commitIDs, commitIDs).Delete(&models.CommitParent{}).Error; err != nil {
		return fmt.Errorf("delete commit edges of %s: %w", id, err)
	}
	if err := tx.Where("task_id = ?", id).Delete(&models.Commit{}).Error; err != nil {
		return fmt.Errorf("delete commits of %s: %w", id, err)
	}
	if err := tx.Where("id = ?", id).Delete(&models.Task{}).Error; err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	logging.Infof("task: deleted %q (%s)", t.Name, id)
	return nil
}

// CommitStats returns commit counts and last commit times keyed by task id.
// Tasks without commits are absent from the map.
func CommitStats(ctx context.Context, gdb *gorm.DB, taskIDs []string) (map[string]Stats, error) {
	out := make(map[string]Stats, len(taskIDs))
	if len(taskIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		TaskID string
		Count  int64
	}
	if err := gdb.WithContext(ctx).Model(&models.Commit{}).
		Select("task_id, COUNT(*) as count").
		Where("task_id IN ?", taskIDs).
		Group("task_id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("task: commit stats: %w", err)
	}
	for _, r := range rows {
		var last models.Commit
		if err := gdb.WithContext(ctx).Where("task_id = ?", r.TaskID).Order("created_at DESC, id DESC").First(&last).Error; err != nil {
			return nil, fmt.Errorf("task: last commit of %s: %w", r.TaskID, err)
		}
		at := last.CreatedAt
		out[r.TaskID] = Stats{TaskID: r.TaskID, CommitCount: r.Count, LastCommitAt: &at}
	}
	return out, nil
}

func authorOrDefault(author string) string {
	if author == "" {
		return "default"
	}
	return author
}
