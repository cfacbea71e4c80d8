package model

import "time"

// TaskStatus is the status of a task as the ONES API spells it.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "to_do"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

// TaskStatuses lists every task status in display order.
var TaskStatuses = []TaskStatus{StatusTodo, StatusInProgress, StatusDone}

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// ProjectStatus is the status of the project owning a task.
type ProjectStatus string

const (
	ProjectNotStarted ProjectStatus = "not_started"
	ProjectInProgress ProjectStatus = "in_progress"
)

// User is a ONES user reference.
type User struct {
	UUID   string `json:"uuid" yaml:"uuid"`
	Name   string `json:"name" yaml:"name"`
	Email  string `json:"email" yaml:"email"`
	Avatar string `json:"avatar,omitempty" yaml:"avatar,omitempty"`
}

// Project is the project a task belongs to.
type Project struct {
	UUID   string        `json:"uuid" yaml:"uuid"`
	Name   string        `json:"name" yaml:"name"`
	Status ProjectStatus `json:"status" yaml:"status"`
}

// Task is a trackable unit of work. Only Status changes, and only through
// an explicit status update.
type Task struct {
	UUID       string     `json:"uuid" yaml:"uuid"`
	Name       string     `json:"name" yaml:"name"`
	Status     TaskStatus `json:"status" yaml:"status"`
	Project    Project    `json:"project" yaml:"project"`
	Assign     *User      `json:"assign" yaml:"assign,omitempty"`
	CreateTime int64      `json:"createTime" yaml:"create_time"`
	UpdateTime int64      `json:"updateTime" yaml:"update_time"`
}

// Created returns CreateTime as a time.Time.
func (t Task) Created() time.Time {
	return time.Unix(t.CreateTime, 0)
}
