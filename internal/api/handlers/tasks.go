// Package handlers holds HTTP handlers for the agent's background work.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/reelwise/reelwise/internal/rebuild"
	"github.com/reelwise/reelwise/internal/scheduler"
	"github.com/reelwise/reelwise/internal/scheduler/tasks"
)

// TaskRunner is the job scheduler.
type TaskRunner interface {
	ListTasks() []scheduler.TaskInfo
	GetTask(id string) (*scheduler.TaskInfo, error)
	RunNow(id string) error
}

// RebuildStatus reports the taste rebuild state machine.
type RebuildStatus interface {
	Status(ctx context.Context) rebuild.Status
}

// RebuildResponse is the rebuild state plus the schedule of the job that
// retries deferred rebuilds.
type RebuildResponse struct {
	rebuild.Status
	Check *scheduler.TaskInfo `json:"check,omitempty"`
}

// TasksHandler serves background task and taste rebuild endpoints. Either
// dependency may be nil; its routes are then not registered.
type TasksHandler struct {
	tasks   TaskRunner
	rebuild RebuildStatus
}

func NewTasksHandler(runner TaskRunner, status RebuildStatus) *TasksHandler {
	return &TasksHandler{tasks: runner, rebuild: status}
}

// RegisterRoutes registers the routes on the API group.
func (h *TasksHandler) RegisterRoutes(g *echo.Group) {
	if h.tasks != nil {
		g.GET("/scheduler/tasks", h.ListTasks)
		g.GET("/scheduler/tasks/:id", h.GetTask)
		g.POST("/scheduler/tasks/:id/run", h.RunTask)
	}
	if h.rebuild != nil {
		g.GET("/rebuild", h.GetRebuild)
		if h.tasks != nil {
			g.POST("/rebuild/check", h.CheckRebuild)
		}
	}
}

// ListTasks returns all scheduled tasks.
// GET /api/v1/scheduler/tasks
func (h *TasksHandler) ListTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, h.tasks.ListTasks())
}

// GetTask returns one task.
// GET /api/v1/scheduler/tasks/:id
func (h *TasksHandler) GetTask(c echo.Context) error {
	task, err := h.tasks.GetTask(c.Param("id"))
	if err != nil {
		return taskError(err)
	}
	return c.JSON(http.StatusOK, task)
}

// RunTask triggers a task now.
// POST /api/v1/scheduler/tasks/:id/run
func (h *TasksHandler) RunTask(c echo.Context) error {
	return h.run(c, c.Param("id"))
}

// GetRebuild returns the taste rebuild state and when it is next checked.
// GET /api/v1/rebuild
func (h *TasksHandler) GetRebuild(c echo.Context) error {
	resp := RebuildResponse{Status: h.rebuild.Status(c.Request().Context())}
	if h.tasks != nil {
		if info, err := h.tasks.GetTask(tasks.RebuildTickTaskID); err == nil {
			resp.Check = info
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// CheckRebuild runs the rebuild check now instead of waiting for its
// schedule. A rebuild still only fires when one is due.
// POST /api/v1/rebuild/check
func (h *TasksHandler) CheckRebuild(c echo.Context) error {
	return h.run(c, tasks.RebuildTickTaskID)
}

func (h *TasksHandler) run(c echo.Context, taskID string) error {
	if err := h.tasks.RunNow(taskID); err != nil {
		return taskError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"message": "Task started",
		"taskId":  taskID,
	})
}

func taskError(err error) error {
	switch {
	case errors.Is(err, scheduler.ErrTaskNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, scheduler.ErrTaskRunning):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
