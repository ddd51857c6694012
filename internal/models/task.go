package models

import (
	"fmt"
	"strings"
	"time"
)

// Task is a unit of work inside a project. It owns branches and commits.
type Task struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	ProjectID  string    `gorm:"size:36;not null;uniqueIndex:uq_project_task_name" json:"project_id"`
	Name       string    `gorm:"size:255;not null;uniqueIndex:uq_project_task_name;index" json:"name"`
	ExternalID *string   `gorm:"size:255" json:"external_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	Project  *Project `gorm:"foreignKey:ProjectID" json:"-"`
	Branches []Branch `gorm:"foreignKey:TaskID" json:"-"`
	Commits  []Commit `gorm:"foreignKey:TaskID" json:"-"`
}

// Validate checks the shape of a task record.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("task name is required")
	}
	if len(t.Name) > 255 {
		return fmt.Errorf("task name exceeds 255 characters")
	}
	if t.ProjectID == "" {
		return fmt.Errorf("task %q has no project", t.Name)
	}
	return nil
}
