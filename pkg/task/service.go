// Package task queries the logged-in user's tasks and changes their status.
package task

import (
	"context"
	"strings"

	"github.com/harrisonrobin/onesheet/pkg/apperr"
	"github.com/harrisonrobin/onesheet/pkg/model"
	"go.uber.org/zap"
)

// Remote is the GraphQL transport.
type Remote interface {
	Query(ctx context.Context, doc string, vars map[string]interface{}, out interface{}) error
	Mutate(ctx context.Context, doc string, vars map[string]interface{}, out interface{}) error
}

// Identity returns the logged-in user's id, or "" when logged out.
type Identity interface {
	UserID() string
}

// Filter narrows GetTasks. Statuses are OR-ed, as are ProjectStatuses.
type Filter struct {
	Statuses        []model.TaskStatus
	ProjectStatuses []model.ProjectStatus
}

var errNotLoggedIn = apperr.NewBusiness("user is not logged in")

const taskFields = `
    uuid
    name
    status
    project {
      uuid
      name
      status
    }
    assign {
      uuid
      name
      email
      avatar
    }
    createTime
    updateTime`

const updateTaskStatusMutation = `mutation UpdateTaskStatus($taskId: String!, $status: String!) {
  updateTask(uuid: $taskId, status: $status) {
    uuid
    status
  }
}`

type Service struct {
	remote   Remote
	identity Identity
	logger   *zap.Logger
}

func NewService(remote Remote, identity Identity, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{remote: remote, identity: identity, logger: logger}
}

// tasksQuery builds the tasks document. Filter clauses are only present
// when their values are, so the server never sees an empty status_in.
func tasksQuery(f Filter) string {
	var b strings.Builder
	b.WriteString("query GetTasks($userId: String!")
	if len(f.Statuses) > 0 {
		b.WriteString(", $statusFilter: [String!]")
	}
	if len(f.ProjectStatuses) > 0 {
		b.WriteString(", $projectStatusFilter: [String!]")
	}
	b.WriteString(") {\n  tasks(\n    filter: {\n      assign_in: [$userId]\n")
	if len(f.Statuses) > 0 {
		b.WriteString("      status_in: $statusFilter\n")
	}
	if len(f.ProjectStatuses) > 0 {
		b.WriteString("      project: { status_in: $projectStatusFilter }\n")
	}
	b.WriteString("    }\n    orderBy: { createTime: DESC }\n  ) {")
	b.WriteString(taskFields)
	b.WriteString("\n  }\n}")
	return b.String()
}

// GetTasks returns the tasks assigned to the logged-in user, newest first.
func (s *Service) GetTasks(ctx context.Context, f Filter) ([]model.Task, error) {
	userID := s.identity.UserID()
	if userID == "" {
		return nil, errNotLoggedIn
	}
	vars := map[string]interface{}{"userId": userID}
	if len(f.Statuses) > 0 {
		vars["statusFilter"] = f.Statuses
	}
	if len(f.ProjectStatuses) > 0 {
		vars["projectStatusFilter"] = f.ProjectStatuses
	}

	var resp struct {
		Tasks []model.Task `json:"tasks"`
	}
	if err := s.remote.Query(ctx, tasksQuery(f), vars, &resp); err != nil {
		return nil, err
	}
	s.logger.Debug("fetched tasks", zap.Int("count", len(resp.Tasks)))
	return resp.Tasks, nil
}

// UpdateTaskStatus sets the status of one task.
func (s *Service) UpdateTaskStatus(ctx context.Context, taskID string, status model.TaskStatus) error {
	if taskID == "" {
		return apperr.NewBusiness("task ID must not be empty")
	}
	if status == "" {
		return apperr.NewBusiness("task status must not be empty")
	}
	if !status.Valid() {
		return apperr.NewBusinessf("unknown task status %q", status)
	}

	var resp struct {
		UpdateTask struct {
			UUID   string           `json:"uuid"`
			Status model.TaskStatus `json:"status"`
		} `json:"updateTask"`
	}
	vars := map[string]interface{}{"taskId": taskID, "status": status}
	if err := s.remote.Mutate(ctx, updateTaskStatusMutation, vars, &resp); err != nil {
		return err
	}
	s.logger.Info("task status updated", zap.String("task_id", taskID), zap.String("status", string(status)))
	return nil
}
