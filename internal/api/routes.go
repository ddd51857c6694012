package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/mimir/internal/branch"
	"github.com/zulandar/mimir/internal/commit"
	"github.com/zulandar/mimir/internal/errs"
	"github.com/zulandar/mimir/internal/logging"
	"github.com/zulandar/mimir/internal/models"
	"github.com/zulandar/mimir/internal/project"
	"github.com/zulandar/mimir/internal/task"
	"gorm.io/gorm"
)

// DefaultHistoryLimit applies when a history request has no limit parameter.
const DefaultHistoryLimit = 50

type handlers struct {
	db     *gorm.DB
	author string
}

func registerRoutes(router *gin.Engine, h *handlers) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/projects", h.listProjects)
	api.GET("/projects/:id/tree", h.projectTree)
	api.GET("/tasks", h.listTasks)
	api.GET("/tasks/:id/branches", h.listBranches)
	api.GET("/tasks/:id/branches/:name/history", h.history)
	api.POST("/tasks/:id/branches/:name/commits", h.createCommit)
	api.POST("/tasks/:id/branches/:name/merge", h.merge)
	api.GET("/commits/:id", h.getCommit)
	api.GET("/commits/:id/parents", h.parents)
	api.GET("/commits/:id/ancestors", h.ancestors)
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch errs.Kind(err) {
	case errs.ErrNotFound:
		return http.StatusNotFound
	case errs.ErrDuplicateName, errs.ErrConflict:
		return http.StatusConflict
	case errs.ErrForbidden:
		return http.StatusForbidden
	case errs.ErrInvalidReference:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.Errorf("api: %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (h *handlers) listProjects(c *gin.Context) {
	projects, err := project.List(c.Request.Context(), h.db)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

func (h *handlers) projectTree(c *gin.Context) {
	tree, err := project.Hierarchy(c.Request.Context(), h.db, c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, tree)
}

type taskView struct {
	models.Task
	CommitCount  int64  `json:"commit_count"`
	LastCommitAt string `json:"last_commit_at,omitempty"`
}

func (h *handlers) listTasks(c *gin.Context) {
	ctx := c.Request.Context()
	tasks, err := task.List(ctx, h.db, c.Query("project"))
	if err != nil {
		abort(c, err)
		return
	}
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	stats, err := task.CommitStats(ctx, h.db, ids)
	if err != nil {
		abort(c, err)
		return
	}
	out := make([]taskView, len(tasks))
	for i, t := range tasks {
		out[i] = taskView{Task: t}
		if s, ok := stats[t.ID]; ok {
			out[i].CommitCount = s.CommitCount
			out[i].LastCommitAt = s.LastCommitAt.Format("2006-01-02T15:04:05Z07:00")
		}
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) listBranches(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := task.Get(ctx, h.db, c.Param("id")); err != nil {
		abort(c, err)
		return
	}
	branches, err := branch.List(ctx, h.db, c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, branches)
}

// limitParam reads ?limit=, defaulting to DefaultHistoryLimit. It writes a
// 400 and returns false for anything but a positive integer.
func limitParam(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return DefaultHistoryLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	return n, true
}

func (h *handlers) history(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	entries, err := commit.History(c.Request.Context(), h.db, c.Param("id"), c.Param("name"), limit)
	if err != nil {
		abort(c, err)
		return
	}
	if entries == nil {
		entries = []commit.Entry{}
	}
	c.JSON(http.StatusOK, entries)
}

// ancestors walks history from an arbitrary commit rather than a branch head.
func (h *handlers) ancestors(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	entries, err := commit.Ancestors(c.Request.Context(), h.db, c.Param("id"), limit)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

type commitRequest struct {
	Message       string `json:"message" binding:"required"`
	Context       string `json:"context"`
	Author        string `json:"author"`
	CognitiveLoad *int   `json:"cognitive_load"`
	Uncertainty   *int   `json:"uncertainty"`
}

func (h *handlers) createCommit(c *gin.Context) {
	var req commitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := commit.Create(c.Request.Context(), h.db, commit.CreateOpts{
		TaskID:        c.Param("id"),
		Branch:        c.Param("name"),
		Message:       req.Message,
		Context:       req.Context,
		Author:        h.authorOr(req.Author),
		CognitiveLoad: req.CognitiveLoad,
		Uncertainty:   req.Uncertainty,
	})
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

type mergeRequest struct {
	Source  string `json:"source" binding:"required"`
	Message string `json:"message" binding:"required"`
	Context string `json:"context"`
	Author  string `json:"author"`
}

func (h *handlers) merge(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	source, err := commit.Resolve(ctx, h.db, c.Param("id"), req.Source)
	if err != nil {
		abort(c, err)
		return
	}
	merged, err := commit.Merge(ctx, h.db, commit.MergeOpts{
		TaskID:         c.Param("id"),
		TargetBranch:   c.Param("name"),
		SourceCommitID: source.ID,
		Message:        req.Message,
		Context:        req.Context,
		Author:         h.authorOr(req.Author),
	})
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, merged)
}

func (h *handlers) getCommit(c *gin.Context) {
	found, err := commit.Get(c.Request.Context(), h.db, c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	if found == nil {
		abort(c, errs.NotFound("commit %s", c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, found)
}

func (h *handlers) parents(c *gin.Context) {
	parents, err := commit.Parents(c.Request.Context(), h.db, c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	if parents == nil {
		parents = []models.Commit{}
	}
	c.JSON(http.StatusOK, parents)
}

func (h *handlers) authorOr(author string) string {
	if author != "" {
		return author
	}
	if h.author != "" {
		return h.author
	}
	return "api"
}
