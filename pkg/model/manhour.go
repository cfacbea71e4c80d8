package model

import "time"

// ManhourTypeRecorded is the type tag of manually and automatically logged hours.
const ManhourTypeRecorded = "recorded"

// Manhour is one logged-time record against a task for a day.
type Manhour struct {
	UUID        string  `json:"uuid" yaml:"uuid"`
	Task        Task    `json:"task" yaml:"task"`
	User        User    `json:"user" yaml:"user"`
	Hours       float64 `json:"hours" yaml:"hours"`
	StartTime   int64   `json:"startTime" yaml:"start_time"`
	Type        string  `json:"type" yaml:"type"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
}

// Day returns the record's start time as a time.Time in loc.
func (m Manhour) Day(loc *time.Location) time.Time {
	return time.Unix(m.StartTime, 0).In(loc)
}

// TaskAllocation is the relative weight of one task in a batch submission.
// Ratios are not required to sum to 1.
type TaskAllocation struct {
	TaskID string  `json:"taskId" yaml:"task_id"`
	Ratio  float64 `json:"ratio" yaml:"ratio"`
}

// BatchSubmitResult summarizes one batch submission.
type BatchSubmitResult struct {
	Success        bool     `json:"success" yaml:"success"`
	SubmittedCount int      `json:"submittedCount" yaml:"submitted_count"`
	FailedCount    int      `json:"failedCount" yaml:"failed_count"`
	Errors         []string `json:"errors" yaml:"errors"`
}
