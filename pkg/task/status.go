package task

import (
	"context"

	"github.com/harrisonrobin/onesheet/pkg/model"
)

// StatusChange is a tentative status applied to a local task before the
// server has confirmed it. Exactly one of Confirm or Revert settles it.
type StatusChange struct {
	task    *model.Task
	prior   model.TaskStatus
	next    model.TaskStatus
	settled bool
}

// Begin applies next to t and remembers the status it replaced.
func Begin(t *model.Task, next model.TaskStatus) *StatusChange {
	c := &StatusChange{task: t, prior: t.Status, next: next}
	t.Status = next
	return c
}

// Noop reports whether the change does not alter the status.
func (c *StatusChange) Noop() bool {
	return c.prior == c.next
}

// Prior is the status before the change.
func (c *StatusChange) Prior() model.TaskStatus {
	return c.prior
}

// Confirm keeps the tentative status.
func (c *StatusChange) Confirm() {
	c.settled = true
}

// Revert restores the captured prior status. It has no effect once the
// change is settled.
func (c *StatusChange) Revert() {
	if c.settled {
		return
	}
	c.task.Status = c.prior
	c.settled = true
}

// ChangeStatus updates t optimistically: the local status changes at once
// and is put back if the server rejects the update. A change to the
// current status sends nothing.
func (s *Service) ChangeStatus(ctx context.Context, t *model.Task, next model.TaskStatus) error {
	c := Begin(t, next)
	if c.Noop() {
		c.Confirm()
		return nil
	}
	if err := s.UpdateTaskStatus(ctx, t.UUID, next); err != nil {
		c.Revert()
		return err
	}
	c.Confirm()
	return nil
}
