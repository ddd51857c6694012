package models

import (
	"fmt"
	"strings"
	"time"
)

// MainBranch is created with every task and can never be deleted.
const MainBranch = "main"

// Branch is a named, mutable pointer into a task's commit graph.
// A nil HeadCommitID means the branch has no commits yet.
type Branch struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	TaskID       string    `gorm:"size:36;not null;uniqueIndex:uq_task_branch_name" json:"task_id"`
	Name         string    `gorm:"size:255;not null;uniqueIndex:uq_task_branch_name" json:"name"`
	HeadCommitID *string   `gorm:"size:36;index" json:"head_commit_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`

	HeadCommit *Commit `gorm:"foreignKey:HeadCommitID" json:"-"`
}

// Validate checks the shape of a branch record.
func (b *Branch) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("branch name is required")
	}
	if strings.ContainsAny(b.Name, " \t\n") {
		return fmt.Errorf("branch name %q contains whitespace", b.Name)
	}
	if len(b.Name) > 255 {
		return fmt.Errorf("branch name exceeds 255 characters")
	}
	if b.TaskID == "" {
		return fmt.Errorf("branch %q has no task", b.Name)
	}
	return nil
}

// Head returns the head commit id, or "" when the branch is empty.
func (b *Branch) Head() string {
	if b.HeadCommitID == nil {
		return ""
	}
	return *b.HeadCommitID
}
