package timesheet

import (
	"math"

	"github.com/harrisonrobin/onesheet/pkg/apperr"
	"github.com/harrisonrobin/onesheet/pkg/model"
)

// ErrInvalidAllocation is returned when the ratios cannot be normalized.
var ErrInvalidAllocation = apperr.NewBusiness("allocation ratios must add up to more than zero")

var (
	errNoTasks     = apperr.NewBusiness("at least one task must be selected")
	errNonPositive = apperr.NewBusiness("total hours must be positive")
	errEmptyTaskID = apperr.NewBusiness("task ID must not be empty")
)

// Share is one task's part of a batch.
type Share struct {
	TaskID string  `json:"taskId" yaml:"task_id"`
	Ratio  float64 `json:"ratio" yaml:"ratio"`
	// Hours is rounded to the nearest whole hour.
	Hours float64 `json:"hours" yaml:"hours"`
}

// EvenAllocations gives every task the same weight.
func EvenAllocations(taskIDs []string) []model.TaskAllocation {
	allocs := make([]model.TaskAllocation, len(taskIDs))
	for i, id := range taskIDs {
		allocs[i] = model.TaskAllocation{TaskID: id, Ratio: 1}
	}
	return allocs
}

// Normalize scales the ratios so they sum to 1, keeping the input order.
func Normalize(allocs []model.TaskAllocation) ([]model.TaskAllocation, error) {
	if len(allocs) == 0 {
		return nil, errNoTasks
	}
	seen := make(map[string]bool, len(allocs))
	var sum float64
	for _, a := range allocs {
		if a.TaskID == "" {
			return nil, errEmptyTaskID
		}
		if seen[a.TaskID] {
			return nil, apperr.NewBusinessf("task %s is selected more than once", a.TaskID)
		}
		seen[a.TaskID] = true
		if a.Ratio < 0 || math.IsNaN(a.Ratio) || math.IsInf(a.Ratio, 0) {
			return nil, apperr.NewBusinessf("ratio for task %s must be a non-negative number", a.TaskID)
		}
		sum += a.Ratio
	}
	if sum <= 0 {
		return nil, ErrInvalidAllocation
	}

	out := make([]model.TaskAllocation, len(allocs))
	for i, a := range allocs {
		out[i] = model.TaskAllocation{TaskID: a.TaskID, Ratio: a.Ratio / sum}
	}
	return out, nil
}

// Allocate splits hours across the tasks in proportion to their ratios.
// Each task's share is rounded to the nearest hour, so the shares add up
// to hours only approximately.
func Allocate(hours float64, allocs []model.TaskAllocation) ([]Share, error) {
	if !(hours > 0) {
		return nil, errNonPositive
	}
	norm, err := Normalize(allocs)
	if err != nil {
		return nil, err
	}
	return split(hours, norm), nil
}

func split(hours float64, norm []model.TaskAllocation) []Share {
	shares := make([]Share, len(norm))
	for i, a := range norm {
		shares[i] = Share{TaskID: a.TaskID, Ratio: a.Ratio, Hours: math.Round(hours * a.Ratio)}
	}
	return shares
}

// PerDay spreads a task's hours over days, rounded to the nearest hour.
// The per-day hours times days can differ from hours by the rounding.
func PerDay(hours float64, days int) float64 {
	if days <= 0 {
		return 0
	}
	return math.Round(hours / float64(days))
}
