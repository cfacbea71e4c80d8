package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/harrisonrobin/onesheet/pkg/colors"
	"github.com/harrisonrobin/onesheet/pkg/config"
	"github.com/harrisonrobin/onesheet/pkg/google"
	"github.com/harrisonrobin/onesheet/pkg/index"
	"github.com/harrisonrobin/onesheet/pkg/model"
	"github.com/harrisonrobin/onesheet/pkg/timesheet"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *App) calendarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Google Calendar mirror of submitted hours",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "auth",
		Short: "Authorize onesheet to write to Google Calendar",
		Long: "Runs the Google consent flow in the browser and saves the token in the\n" +
			"config directory. " + google.ClientSecretsFile + " must be downloaded there first.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := google.Authorize(cmd.Context(), a.Dir, a.Err, a.Logger.Named("google")); err != nil {
				return err
			}
			fmt.Fprintln(a.Err, "Google Calendar authorized.")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <name>",
		Short: "Set the calendar that mirrors submitted hours",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cfg.Calendar = args[0]
			if err := config.SaveTo(filepath.Join(a.Dir, config.FileName), a.cfg); err != nil {
				return fmt.Errorf("error saving config: %w", err)
			}
			fmt.Fprintf(a.Err, "Default calendar set to: %s\n", args[0])
			return nil
		},
	})
	return cmd
}

// mirrorSink forwards submitted units to the calendar. Its failures are
// logged and never fail the submission.
type mirrorSink struct {
	app    *App
	mirror *google.Mirror
	tasks  map[string]model.Task
	total  int
	failed int
}

// openMirror connects to the configured calendar, or returns nil after
// warning when it cannot.
func (a *App) openMirror(ctx context.Context) *mirrorSink {
	log := a.Logger.Named("google")
	idx, err := index.Open(filepath.Join(a.Dir, index.FileName))
	if err != nil {
		log.Warn("could not open event index", zap.Error(err))
		return nil
	}
	palette, err := colors.Open(filepath.Join(a.Dir, colors.FileName))
	if err != nil {
		log.Warn("could not open color cache", zap.Error(err))
		return nil
	}
	m, err := google.Connect(ctx, a.Dir, a.cfg.Calendar, idx, palette, log)
	if err != nil {
		log.Warn("calendar mirror unavailable", zap.Error(err))
		fmt.Fprintf(a.Err, "warning: calendar mirror unavailable: %v\n", err)
		return nil
	}
	tasks, err := a.assignedTasks(ctx)
	if err != nil {
		tasks = map[string]model.Task{}
	}
	return &mirrorSink{app: a, mirror: m, tasks: tasks}
}

func (s *mirrorSink) record(ctx context.Context, u timesheet.Unit, desc string) {
	s.total++
	e := google.Entry{TaskID: u.TaskID, Date: u.Date, Hours: u.Hours, Description: desc}
	if t, ok := s.tasks[u.TaskID]; ok {
		e.TaskName = t.Name
		e.ProjectID = t.Project.UUID
	}
	if _, err := s.mirror.Record(ctx, e); err != nil {
		s.failed++
		s.app.Logger.Warn("could not mirror unit", zap.String("unit", e.Key()), zap.Error(err))
	}
}

func (s *mirrorSink) finish() {
	if err := s.mirror.Flush(); err != nil {
		s.app.Logger.Warn("could not save mirror state", zap.Error(err))
	}
	if s.failed > 0 {
		fmt.Fprintf(s.app.Err, "warning: %d of %d calendar events could not be written\n", s.failed, s.total)
	}
}
