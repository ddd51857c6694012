package models

import (
	"fmt"
	"strings"
	"time"
)

// Project groups tasks and may nest under a parent project.
type Project struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"size:255;not null;uniqueIndex" json:"name"`
	ParentID  *string   `gorm:"size:36;index" json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	Parent   *Project  `gorm:"foreignKey:ParentID" json:"-"`
	Children []Project `gorm:"foreignKey:ParentID" json:"-"`
	Tasks    []Task    `gorm:"foreignKey:ProjectID" json:"-"`
}

// Validate checks the shape of a project record.
func (p *Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("project name is required")
	}
	if len(p.Name) > 255 {
		return fmt.Errorf("project name exceeds 255 characters")
	}
	if p.ParentID != nil && *p.ParentID == p.ID && p.ID != "" {
		return fmt.Errorf("project %s cannot be its own parent", p.ID)
	}
	return nil
}
