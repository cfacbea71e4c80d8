package timesheet

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/harrisonrobin/onesheet/pkg/apperr"
	"github.com/harrisonrobin/onesheet/pkg/model"
	"go.uber.org/zap"
)

// BatchRequest asks for TotalHours to be spread over the work days between
// Start and End across the weighted tasks in Allocations.
type BatchRequest struct {
	TotalHours      float64
	Start           time.Time
	End             time.Time
	Allocations     []model.TaskAllocation
	ExcludeWeekends bool
	// DeductLogged subtracts hours already logged against the same tasks
	// in the range before allocating.
	DeductLogged bool
	Description  string
	// BatchID tags the batch in logs; empty means a fresh UUID.
	BatchID string
	// AfterSubmit, when set, is called after each unit is written with the
	// id of the created manhour.
	AfterSubmit func(u Unit, manhourID string)
}

// Unit is one planned manhour: a task, a day and its hours.
type Unit struct {
	TaskID string    `json:"taskId" yaml:"task_id"`
	Date   time.Time `json:"date" yaml:"date"`
	Hours  float64   `json:"hours" yaml:"hours"`
}

// Plan is the computed batch before anything is written.
type Plan struct {
	WorkDays  []time.Time `json:"workDays" yaml:"work_days"`
	Logged    float64     `json:"logged" yaml:"logged"`
	Remaining float64     `json:"remaining" yaml:"remaining"`
	Shares    []Share     `json:"shares" yaml:"shares"`
	// Units are ordered task by task, and by day within a task.
	Units []Unit `json:"units" yaml:"units"`
}

// Hours is the sum over all units.
func (p *Plan) Hours() float64 {
	var total float64
	for _, u := range p.Units {
		total += u.Hours
	}
	return total
}

// Plan validates req and computes its units. It reads logged hours when
// req.DeductLogged is set and otherwise makes no remote call. It never
// writes.
func (s *Service) Plan(ctx context.Context, req BatchRequest) (*Plan, error) {
	if !(req.TotalHours > 0) || math.IsInf(req.TotalHours, 0) {
		return nil, errNonPositive
	}
	if len(req.Allocations) == 0 {
		return nil, errNoTasks
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return nil, apperr.NewBusiness("start and end dates are required")
	}
	days, err := WorkDays(req.Start, req.End, req.ExcludeWeekends)
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, apperr.NewBusiness("there are no work days in the date range")
	}
	norm, err := Normalize(req.Allocations)
	if err != nil {
		return nil, err
	}

	plan := &Plan{WorkDays: days, Remaining: req.TotalHours}
	if req.DeductLogged {
		ids := make([]string, len(norm))
		for i, a := range norm {
			ids[i] = a.TaskID
		}
		logged, err := s.LoggedHours(ctx, req.Start, req.End, ids)
		if err != nil {
			return nil, err
		}
		plan.Logged = logged
		plan.Remaining = math.Max(0, req.TotalHours-logged)
		if plan.Remaining <= 0 {
			return nil, apperr.NewBusinessf("no remaining hours to submit: %g of %g hours are already logged",
				logged, req.TotalHours)
		}
	}

	plan.Shares = split(plan.Remaining, norm)
	for _, sh := range plan.Shares {
		perDay := PerDay(sh.Hours, len(days))
		if perDay <= 0 {
			return nil, apperr.NewBusinessf("task %s would get %g hours per day; raise the total or shorten the range",
				sh.TaskID, perDay)
		}
		for _, d := range days {
			plan.Units = append(plan.Units, Unit{TaskID: sh.TaskID, Date: d, Hours: perDay})
		}
	}
	return plan, nil
}

// BatchSubmit plans req and writes its units one after another. It stops at
// the first failed write. Units written before the failure stay recorded;
// nothing is undone.
//
// A rejected request writes nothing. The returned error is the rejection or
// the first write failure, and is nil when every unit was written.
func (s *Service) BatchSubmit(ctx context.Context, req BatchRequest) (model.BatchSubmitResult, error) {
	result := model.BatchSubmitResult{Success: true, Errors: []string{}}
	batchID := req.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}
	logger := s.logger.With(zap.String("batch_id", batchID))

	plan, err := s.Plan(ctx, req)
	if err != nil {
		e := apperr.Ensure(err)
		logger.Warn("batch rejected", zap.String("reason", e.Message()))
		result.Success = false
		result.Errors = append(result.Errors, e.Message())
		return result, e
	}
	logger.Info("batch planned",
		zap.Int("units", len(plan.Units)),
		zap.Int("work_days", len(plan.WorkDays)),
		zap.Float64("remaining", plan.Remaining),
		zap.Float64("logged", plan.Logged),
	)

	for _, u := range plan.Units {
		if err := s.wait(ctx); err != nil {
			result.Success = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("batch cancelled before task %s on %s: %v", u.TaskID, u.Date.Format(DateLayout), err))
			noteCommitted(&result, len(plan.Units))
			logger.Warn("batch cancelled", zap.Int("submitted", result.SubmittedCount), zap.Error(err))
			return result, apperr.NewSystem(0, "batch submission was cancelled", err)
		}

		id, err := s.SubmitManhour(ctx, Submission{
			TaskID:      u.TaskID,
			Date:        u.Date,
			Hours:       u.Hours,
			Description: req.Description,
		})
		if err != nil {
			e := apperr.Ensure(err)
			result.Success = false
			result.FailedCount++
			result.Errors = append(result.Errors,
				fmt.Sprintf("task %s on %s failed: %s", u.TaskID, u.Date.Format(DateLayout), e.Message()))
			noteCommitted(&result, len(plan.Units))
			logger.Warn("batch stopped at first failure",
				zap.String("task_id", u.TaskID),
				zap.String("date", u.Date.Format(DateLayout)),
				zap.Int("submitted", result.SubmittedCount),
				zap.Error(e),
			)
			return result, e
		}
		result.SubmittedCount++
		if req.AfterSubmit != nil {
			req.AfterSubmit(u, id)
		}
	}

	logger.Info("batch submitted", zap.Int("submitted", result.SubmittedCount))
	return result, nil
}

func (s *Service) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

func noteCommitted(result *model.BatchSubmitResult, planned int) {
	if result.SubmittedCount > 0 {
		result.Errors = append(result.Errors,
			fmt.Sprintf("%d of %d units were submitted before the batch stopped and remain recorded",
				result.SubmittedCount, planned))
	}
}
