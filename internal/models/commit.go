package models

import (
	"fmt"
	"strings"
	"time"
)

// Commit is an immutable context snapshot. No operation updates a commit
// after it is created.
type Commit struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	TaskID        string    `gorm:"size:36;not null;index" json:"task_id"`
	Message       string    `gorm:"size:512;not null" json:"message"`
	FullContext   string    `gorm:"type:text;not null" json:"full_context"`
	Author        string    `gorm:"size:255;not null" json:"author"`
	CognitiveLoad *int      `gorm:"type:smallint" json:"cognitive_load,omitempty"`
	Uncertainty   *int      `gorm:"type:smallint" json:"uncertainty,omitempty"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

// Validate checks the shape of a commit record.
func (c *Commit) Validate() error {
	if strings.TrimSpace(c.Message) == "" {
		return fmt.Errorf("commit message is required")
	}
	if len(c.Message) > 512 {
		return fmt.Errorf("commit message exceeds 512 characters")
	}
	if strings.TrimSpace(c.Author) == "" {
		return fmt.Errorf("commit author is required")
	}
	if c.TaskID == "" {
		return fmt.Errorf("commit has no task")
	}
	return nil
}

// ShortID returns the first 8 characters of the commit id.
func (c *Commit) ShortID() string {
	return ShortID(c.ID)
}

// ShortID truncates an id to 8 characters for display.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// CommitParent is a directed edge from a child commit to one of its parents.
// A commit with two or more parents is a merge commit.
type CommitParent struct {
	ChildID  string `gorm:"primaryKey;size:36" json:"child_id"`
	ParentID string `gorm:"primaryKey;size:36;index" json:"parent_id"`

	Child  Commit `gorm:"foreignKey:ChildID" json:"-"`
	Parent Commit `gorm:"foreignKey:ParentID" json:"-"`
}
