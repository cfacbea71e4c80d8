package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/harrisonrobin/onesheet/pkg/apperr"
	"github.com/harrisonrobin/onesheet/pkg/model"
	"github.com/harrisonrobin/onesheet/pkg/task"
	"github.com/harrisonrobin/onesheet/pkg/util"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *App) tasksCmd() *cobra.Command {
	var statuses, projectStatuses []string
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the tasks assigned to you, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			f := task.Filter{}
			for _, s := range statuses {
				st, err := util.ParseStatus(s)
				if err != nil {
					return err
				}
				f.Statuses = append(f.Statuses, st)
			}
			for _, s := range projectStatuses {
				f.ProjectStatuses = append(f.ProjectStatuses, model.ProjectStatus(s))
			}

			tasks, err := a.tasks.GetTasks(cmd.Context(), f)
			if err != nil {
				return err
			}
			return a.render(tasks, func(w io.Writer) {
				row(w, "ID", "STATUS", "NAME", "PROJECT", "ASSIGNEE", "CREATED")
				for _, t := range tasks {
					row(w, t.UUID, t.Status, t.Name, t.Project.Name, userLabel(t.Assign), t.Created().Format(util.DateLayout))
				}
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "only tasks with these statuses (to_do, in_progress, done)")
	cmd.Flags().StringSliceVar(&projectStatuses, "project-status", nil, "only tasks whose project has these statuses (not_started, in_progress)")
	cmd.AddCommand(a.setStatusCmd())
	return cmd
}

type statusResult struct {
	TaskID string           `json:"taskId" yaml:"task_id"`
	From   model.TaskStatus `json:"from,omitempty" yaml:"from,omitempty"`
	To     model.TaskStatus `json:"to" yaml:"to"`
}

func (a *App) setStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <task-id> <status>",
		Short: "Change the status of a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			next, err := util.ParseStatus(args[1])
			if err != nil {
				return err
			}
			res := statusResult{TaskID: args[0], To: next}

			// An assigned task is changed optimistically so the prior
			// status can be reported; any other id is sent as is.
			known, err := a.assignedTasks(cmd.Context())
			if err != nil {
				return err
			}
			if t, ok := known[args[0]]; ok {
				res.From = t.Status
				if err := a.tasks.ChangeStatus(cmd.Context(), &t, next); err != nil {
					return err
				}
			} else if err := a.tasks.UpdateTaskStatus(cmd.Context(), args[0], next); err != nil {
				return err
			}

			return a.render(res, func(w io.Writer) {
				if res.From == "" {
					fmt.Fprintf(w, "%s: %s\n", res.TaskID, res.To)
					return
				}
				fmt.Fprintf(w, "%s: %s -> %s\n", res.TaskID, res.From, res.To)
			})
		},
	}
}

// assignedTasks returns the user's tasks by id. Only an Auth failure is
// returned; any other failed lookup is logged and yields an empty map.
func (a *App) assignedTasks(ctx context.Context) (map[string]model.Task, error) {
	tasks, err := a.tasks.GetTasks(ctx, task.Filter{})
	if err != nil {
		if apperr.Is(err, apperr.KindAuth) {
			return nil, err
		}
		a.Logger.Warn("could not look up assigned tasks", zap.Error(err))
		return map[string]model.Task{}, nil
	}
	out := make(map[string]model.Task, len(tasks))
	for _, t := range tasks {
		out[t.UUID] = t
	}
	return out, nil
}

// today is midnight of the current local day.
func (a *App) today() time.Time {
	n := a.Now()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, n.Location())
}
