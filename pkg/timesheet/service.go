// Package timesheet reads and writes logged hours and spreads a total over
// tasks and work days.
package timesheet

import (
	"context"
	"math"
	"time"

	"github.com/harrisonrobin/onesheet/pkg/apperr"
	"github.com/harrisonrobin/onesheet/pkg/model"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
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

var errNotLoggedIn = apperr.NewBusiness("user is not logged in")

const manhoursQuery = `query GetManhours($startTime: Int!, $endTime: Int!, $userId: String!) {
  manhours(
    filter: {
      owner_equal: $userId
      startTime_range: { gte: $startTime, lte: $endTime }
    }
    orderBy: { startTime: DESC }
  ) {
    uuid
    hours
    startTime
    type
    description
    task {
      uuid
      name
      status
      project {
        uuid
        name
        status
      }
    }
    owner {
      uuid
      name
      email
      avatar
    }
  }
}`

const addManhourMutation = `mutation CreateManhour($taskId: String!, $hours: Float!, $startTime: Int!, $description: String) {
  addManhour(
    taskUUID: $taskId
    hours: $hours
    startTime: $startTime
    type: "recorded"
    description: $description
  ) {
    uuid
  }
}`

// Filter selects logged hours. Start and End are whole days, both inclusive.
// An empty UserID means the logged-in user.
type Filter struct {
	Start  time.Time
	End    time.Time
	UserID string
}

// Submission is one manhour to write.
type Submission struct {
	TaskID      string
	Date        time.Time
	Hours       float64
	Description string
}

type Service struct {
	remote   Remote
	identity Identity
	limiter  *rate.Limiter
	logger   *zap.Logger
}

type Option func(*Service)

// WithRateLimit paces batch submissions to perSecond writes. Zero or less
// means no pacing.
func WithRateLimit(perSecond float64) Option {
	return func(s *Service) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		} else {
			s.limiter = nil
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(remote Remote, identity Identity, opts ...Option) *Service {
	s := &Service{remote: remote, identity: identity, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type manhourRecord struct {
	UUID        string     `json:"uuid"`
	Hours       float64    `json:"hours"`
	StartTime   int64      `json:"startTime"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Task        model.Task `json:"task"`
	Owner       model.User `json:"owner"`
}

func (r manhourRecord) toModel() model.Manhour {
	return model.Manhour{
		UUID:        r.UUID,
		Task:        r.Task,
		User:        r.Owner,
		Hours:       r.Hours,
		StartTime:   r.StartTime,
		Type:        r.Type,
		Description: r.Description,
	}
}

// GetManhours returns the hours logged by a user in a range, latest first.
func (s *Service) GetManhours(ctx context.Context, f Filter) ([]model.Manhour, error) {
	userID := f.UserID
	if userID == "" {
		userID = s.identity.UserID()
	}
	if userID == "" {
		return nil, errNotLoggedIn
	}
	if f.Start.IsZero() || f.End.IsZero() {
		return nil, apperr.NewBusiness("start and end dates are required")
	}
	start := Day(f.Start)
	end := Day(f.End.In(f.Start.Location()))
	if start.After(end) {
		return nil, ErrInvalidRange
	}

	// endTime covers the whole last day.
	vars := map[string]interface{}{
		"startTime": start.Unix(),
		"endTime":   end.AddDate(0, 0, 1).Unix() - 1,
		"userId":    userID,
	}
	var resp struct {
		Manhours []manhourRecord `json:"manhours"`
	}
	if err := s.remote.Query(ctx, manhoursQuery, vars, &resp); err != nil {
		return nil, err
	}

	out := make([]model.Manhour, len(resp.Manhours))
	for i, r := range resp.Manhours {
		out[i] = r.toModel()
	}
	s.logger.Debug("fetched manhours", zap.Int("count", len(out)), zap.String("user_id", userID))
	return out, nil
}

// LoggedHours sums the hours the logged-in user already logged against
// taskIDs between start and end.
func (s *Service) LoggedHours(ctx context.Context, start, end time.Time, taskIDs []string) (float64, error) {
	records, err := s.GetManhours(ctx, Filter{Start: start, End: end})
	if err != nil {
		return 0, err
	}
	want := make(map[string]bool, len(taskIDs))
	for _, id := range taskIDs {
		want[id] = true
	}
	var total float64
	for _, r := range records {
		if want[r.Task.UUID] {
			total += r.Hours
		}
	}
	return total, nil
}

func validateSubmission(sub Submission) error {
	if sub.TaskID == "" {
		return errEmptyTaskID
	}
	if sub.Date.IsZero() {
		return apperr.NewBusiness("date must not be empty")
	}
	if !(sub.Hours > 0) || math.IsInf(sub.Hours, 0) {
		return apperr.NewBusiness("hours must be positive")
	}
	return nil
}

// SubmitManhour writes one manhour record. It returns the new record's id.
func (s *Service) SubmitManhour(ctx context.Context, sub Submission) (string, error) {
	if err := validateSubmission(sub); err != nil {
		return "", err
	}
	vars := map[string]interface{}{
		"taskId":      sub.TaskID,
		"hours":       sub.Hours,
		"startTime":   Day(sub.Date).Unix(),
		"description": sub.Description,
	}
	var resp struct {
		AddManhour struct {
			UUID string `json:"uuid"`
		} `json:"addManhour"`
	}
	if err := s.remote.Mutate(ctx, addManhourMutation, vars, &resp); err != nil {
		return "", err
	}
	s.logger.Debug("manhour submitted",
		zap.String("task_id", sub.TaskID),
		zap.String("date", sub.Date.Format(DateLayout)),
		zap.Float64("hours", sub.Hours),
		zap.String("manhour_id", resp.AddManhour.UUID),
	)
	return resp.AddManhour.UUID, nil
}
