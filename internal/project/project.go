// Package project manages the project hierarchy.
package project

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zulandar/mimir/internal/db"
	"github.com/zulandar/mimir/internal/errs"
	"github.com/zulandar/mimir/internal/logging"
	"github.com/zulandar/mimir/internal/models"
	"github.com/zulandar/mimir/internal/task"
	"gorm.io/gorm"
)

// MaxDepth bounds parent-chain walks and tree assembly. Stored data that was
// written before cycle checks existed could otherwise loop forever.
const MaxDepth = 64

// Node is one project in an assembled hierarchy.
type Node struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	ParentID  *string `json:"parent_id,omitempty"`
	Children  []*Node `json:"children"`
	Truncated bool    `json:"truncated,omitempty"`
}

// Create adds a project. parentID may be empty for a root project.
func Create(ctx context.Context, gdb *gorm.DB, name, parentID string) (*models.Project, error) {
	p := models.Project{
		ID:   models.NewID(),
		Name: strings.TrimSpace(name),
	}
	if parentID != "" {
		p.ParentID = &parentID
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}

	err := db.WithTx(ctx, gdb, func(tx *gorm.DB) error {
		if err := ensureNameFree(tx, p.Name, ""); err != nil {
			return err
		}
		if parentID != "" {
			if _, err := get(tx, parentID); err != nil {
				return fmt.Errorf("parent: %w", err)
			}
		}
		if err := tx.Create(&p).Error; err != nil {
			if db.IsDuplicate(err) {
				return errs.Duplicate("project %q already exists", p.Name)
			}
			return fmt.Errorf("create: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	logging.Infof("project: created %q (%s)", p.Name, p.ID)
	return &p, nil
}

// Get returns a project by id.
func Get(ctx context.Context, gdb *gorm.DB, id string) (*models.Project, error) {
	p, err := get(gdb.WithContext(ctx), id)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	return p, nil
}

// GetByName returns a project by its globally unique name.
func GetByName(ctx context.Context, gdb *gorm.DB, name string) (*models.Project, error) {
	var p models.Project
	if err := gdb.WithContext(ctx).Where("name = ?", name).First(&p).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("project: %w", errs.NotFound("project %q", name))
		}
		return nil, fmt.Errorf("project: get %q: %w", name, err)
	}
	return &p, nil
}

// List returns every project ordered by name.
func List(ctx context.Context, gdb *gorm.DB) ([]models.Project, error) {
	var projects []models.Project
	if err := gdb.WithContext(ctx).Order("name ASC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("project: list: %w", err)
	}
	return projects, nil
}

// ListRoots returns projects without a parent, ordered by name.
func ListRoots(ctx context.Context, gdb *gorm.DB) ([]models.Project, error) {
	var projects []models.Project
	if err := gdb.WithContext(ctx).Where("parent_id IS NULL").Order("name ASC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("project: list roots: %w", err)
	}
	return projects, nil
}

// ListChildren returns the direct children of a project, ordered by name.
func ListChildren(ctx context.Context, gdb *gorm.DB, parentID string) ([]models.Project, error) {
	children, err := listChildren(gdb.WithContext(ctx), parentID)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	return children, nil
}

// Rename changes a project's name.
func Rename(ctx context.Context, gdb *gorm.DB, id, newName string) (*models.Project, error) {
	newName = strings.TrimSpace(newName)
	var p *models.Project
	err := db.WithTx(ctx, gdb, func(tx *gorm.DB) error {
		var err error
		p, err = get(tx, id)
		if err != nil {
			return err
		}
		old := p.Name
		p.Name = newName
		if err := p.Validate(); err != nil {
			return err
		}
		if err := ensureNameFree(tx, newName, id); err != nil {
			return err
		}
		if err := tx.Model(&models.Project{}).Where("id = ?", id).Update("name", newName).Error; err != nil {
			if db.IsDuplicate(err) {
				return errs.Duplicate("project %q already exists", newName)
			}
			return fmt.Errorf("rename %s: %w", id, err)
		}
		logging.Infof("project: renamed %q to %q", old, newName)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	return p, nil
}

// Move reparents a project. An empty newParentID makes it a root. A parent
// that is the project itself or one of its descendants is rejected.
func Move(ctx context.Context, gdb *gorm.DB, id, newParentID string) (*models.Project, error) {
	var p *models.Project
	err := db.WithTx(ctx, gdb, func(tx *gorm.DB) error {
		var err error
		p, err = get(tx, id)
		if err != nil {
			return err
		}
		var parent *string
		if newParentID != "" {
			if _, err := get(tx, newParentID); err != nil {
				return fmt.Errorf("parent: %w", err)
			}
			cyclic, err := isAncestorOrSelf(tx, id, newParentID)
			if err != nil {
				return err
			}
			if cyclic {
				return errs.Forbidden("moving %s under %s would create a cycle", id, newParentID)
			}
			parent = &newParentID
		}
		if err := tx.Model(&models.Project{}).Where("id = ?", id).Update("parent_id", parent).Error; err != nil {
			return fmt.Errorf("move %s: %w", id, err)
		}
		p.ParentID = parent
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	return p, nil
}

// Delete removes a project and every task it owns. It reports false when no
// such project exists. Projects that still have children cannot be deleted.
func Delete(ctx context.Context, gdb *gorm.DB, id string) (bool, error) {
	found := true
	err := db.WithTx(ctx, gdb, func(tx *gorm.DB) error {
		p, err := get(tx, id)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				found = false
				return nil
			}
			return err
		}
		var children int64
		if err := tx.Model(&models.Project{}).Where("parent_id = ?", id).Count(&children).Error; err != nil {
			return fmt.Errorf("count children of %s: %w", id, err)
		}
		if children > 0 {
			return errs.Forbidden("project %q has %d child project(s)", p.Name, children)
		}
		var taskIDs []string
		if err := tx.Model(&models.Task{}).Where("project_id = ?", id).Pluck("id", &taskIDs).Error; err != nil {
			return fmt.Errorf("list tasks of %s: %w", id, err)
		}
		for _, tid := range taskIDs {
			if err := task.DeleteOwned(tx, tid); err != nil {
				return err
			}
		}
		if err := tx.Where("id = ?", id).Delete(&models.Project{}).Error; err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
		logging.Infof("project: deleted %q with %d task(s)", p.Name, len(taskIDs))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("project: %w", err)
	}
	return found, nil
}

// Hierarchy assembles the tree rooted at id. Branches deeper than MaxDepth,
// or that revisit a project already on the tree, are cut and marked Truncated.
func Hierarchy(ctx context.Context, gdb *gorm.DB, id string) (*Node, error) {
	tx := gdb.WithContext(ctx)
	root, err := get(tx, id)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	seen := map[string]bool{}
	node, err := buildNode(tx, root, 0, seen)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	return node, nil
}

// Forest assembles the trees of every root project.
func Forest(ctx context.Context, gdb *gorm.DB) ([]*Node, error) {
	roots, err := ListRoots(ctx, gdb)
	if err != nil {
		return nil, err
	}
	nodes := make([]*Node, 0, len(roots))
	for _, r := range roots {
		n, err := Hierarchy(ctx, gdb, r.ID)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func buildNode(tx *gorm.DB, p *models.Project, depth int, seen map[string]bool) (*Node, error) {
	n := &Node{ID: p.ID, Name: p.Name, ParentID: p.ParentID, Children: []*Node{}}
	if seen[p.ID] || depth >= MaxDepth {
		n.Truncated = true
		return n, nil
	}
	seen[p.ID] = true
	children, err := listChildren(tx, p.ID)
	if err != nil {
		return nil, err
	}
	for i := range children {
		child, err := buildNode(tx, &children[i], depth+1, seen)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

func get(tx *gorm.DB, id string) (*models.Project, error) {
	var p models.Project
	if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, errs.NotFound("project %s", id)
		}
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return &p, nil
}

func listChildren(tx *gorm.DB, parentID string) ([]models.Project, error) {
	var children []models.Project
	if err := tx.Where("parent_id = ?", parentID).Order("name ASC").Find(&children).Error; err != nil {
		return nil, fmt.Errorf("list children of %s: %w", parentID, err)
	}
	return children, nil
}

// ensureNameFree fails with a duplicate error when another project holds name.
func ensureNameFree(tx *gorm.DB, name, exceptID string) error {
	q := tx.Model(&models.Project{}).Where("name = ?", name)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return fmt.Errorf("check name %q: %w", name, err)
	}
	if count > 0 {
		return errs.Duplicate("project %q already exists", name)
	}
	return nil
}

// isAncestorOrSelf walks up from candidate and reports whether it reaches id.
func isAncestorOrSelf(tx *gorm.DB, id, candidate string) (bool, error) {
	cur := candidate
	for n := 0; n < MaxDepth; n++ {
		if cur == id {
			return true, nil
		}
		p, err := get(tx, cur)
		if err != nil {
			return false, err
		}
		if p.ParentID == nil {
			return false, nil
		}
		cur = *p.ParentID
	}
	// A chain this long is either corrupt or cyclic already.
	return true, nil
}
