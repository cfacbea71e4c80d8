package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/harrisonrobin/onesheet/pkg/apperr"
	"github.com/harrisonrobin/onesheet/pkg/journal"
	"github.com/harrisonrobin/onesheet/pkg/model"
	"github.com/harrisonrobin/onesheet/pkg/timesheet"
	"github.com/harrisonrobin/onesheet/pkg/util"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// dateRange resolves --from/--to, defaulting to the current week.
func (a *App) dateRange(from, to string) (time.Time, time.Time, error) {
	loc := a.Now().Location()
	start, end := util.WeekBounds(a.today())
	var err error
	if from != "" {
		if start, err = util.ParseDate(from, a.Now(), loc); err != nil {
			return time.Time{}, time.Time{}, apperr.NewBusiness(err.Error())
		}
	}
	if to != "" {
		if end, err = util.ParseDate(to, a.Now(), loc); err != nil {
			return time.Time{}, time.Time{}, apperr.NewBusiness(err.Error())
		}
	}
	return start, end, nil
}

func (a *App) hoursCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "hours",
		Short: "List the hours you logged in a date range (default: this week)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			start, end, err := a.dateRange(from, to)
			if err != nil {
				return err
			}
			records, err := a.sheet.GetManhours(cmd.Context(), timesheet.Filter{Start: start, End: end})
			if err != nil {
				return err
			}
			loc := start.Location()
			return a.render(records, func(w io.Writer) {
				row(w, "DATE", "TASK", "HOURS", "DESCRIPTION")
				var total float64
				for _, r := range records {
					name := r.Task.Name
					if name == "" {
						name = r.Task.UUID
					}
					row(w, r.Day(loc).Format(util.DateLayout), name, util.FormatHours(r.Hours), r.Description)
					total += r.Hours
				}
				row(w, "TOTAL", "", util.FormatHours(total), "")
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD")
	return cmd
}

type submitResult struct {
	ID     string  `json:"id" yaml:"id"`
	TaskID string  `json:"taskId" yaml:"task_id"`
	Date   string  `json:"date" yaml:"date"`
	Hours  float64 `json:"hours" yaml:"hours"`
}

func (a *App) submitCmd() *cobra.Command {
	var (
		taskID, date, desc string
		hours              float64
		mirror             bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Log hours against one task for one day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			day, err := util.ParseDate(date, a.Now(), a.Now().Location())
			if err != nil {
				return apperr.NewBusiness(err.Error())
			}
			ctx := cmd.Context()
			id, err := a.sheet.SubmitManhour(ctx, timesheet.Submission{
				TaskID:      taskID,
				Date:        day,
				Hours:       hours,
				Description: desc,
			})
			if err != nil {
				return err
			}

			if mirror {
				if sink := a.openMirror(ctx); sink != nil {
					sink.record(ctx, timesheet.Unit{TaskID: taskID, Date: day, Hours: hours}, desc)
					sink.finish()
				}
			}

			res := submitResult{ID: id, TaskID: taskID, Date: day.Format(util.DateLayout), Hours: hours}
			return a.render(res, func(w io.Writer) {
				fmt.Fprintf(w, "Submitted %sh to %s on %s (%s)\n", util.FormatHours(res.Hours), res.TaskID, res.Date, res.ID)
			})
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "task ID")
	cmd.Flags().StringVar(&date, "date", "today", "day, YYYY-MM-DD")
	cmd.Flags().Float64Var(&hours, "hours", 0, "hours to log")
	cmd.Flags().StringVar(&desc, "desc", "", "description")
	cmd.Flags().BoolVar(&mirror, "mirror", false, "also write the entry to Google Calendar")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("hours")
	return cmd
}

type autofillResult struct {
	BatchID string                  `json:"batchId" yaml:"batch_id"`
	Result  model.BatchSubmitResult `json:"result" yaml:"result"`
	Units   []timesheet.Unit        `json:"units" yaml:"units"`
}

func (a *App) autofillCmd() *cobra.Command {
	var (
		total                     float64
		from, to, desc            string
		taskFlags                 []string
		includeWeekends, noDeduct bool
		dryRun, mirror            bool
	)
	cmd := &cobra.Command{
		Use:   "autofill",
		Short: "Spread hours over the work days of a range across weighted tasks",
		Long: `Spread --total hours evenly over the work days between --from and --to
(default: this week), split across the tasks by ratio. Hours already logged
against the same tasks in the range are deducted unless --no-deduct is set.

Units are submitted one by one, task by task. The first failure stops the
batch; units written before it stay recorded.

Example:
  onesheet autofill --total 40 --task T1=3 --task T2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			start, end, err := a.dateRange(from, to)
			if err != nil {
				return err
			}
			allocs, err := util.ParseAllocations(taskFlags)
			if err != nil {
				return apperr.NewBusiness(err.Error())
			}
			req := timesheet.BatchRequest{
				TotalHours:      total,
				Start:           start,
				End:             end,
				Allocations:     allocs,
				ExcludeWeekends: a.cfg.ExcludeWeekends && !includeWeekends,
				DeductLogged:    !noDeduct,
				Description:     desc,
			}
			ctx := cmd.Context()

			if dryRun {
				plan, err := a.sheet.Plan(ctx, req)
				if err != nil {
					return err
				}
				return a.renderPlan(plan)
			}

			j, err := a.openJournal()
			if err != nil {
				return err
			}
			var sink *mirrorSink
			if mirror {
				sink = a.openMirror(ctx)
			}

			res := autofillResult{BatchID: uuid.NewString()}
			header := journal.Batch{
				ID:         res.BatchID,
				StartedAt:  a.Now(),
				TotalHours: total,
				From:       start.Format(util.DateLayout),
				To:         end.Format(util.DateLayout),
			}
			req.BatchID = res.BatchID
			// Opened up front so a batch that stops before its first write
			// is still on record.
			j.Start(header)
			req.AfterSubmit = func(u timesheet.Unit, manhourID string) {
				res.Units = append(res.Units, u)
				j.Record(res.BatchID, journal.Entry{
					TaskID:      u.TaskID,
					Date:        u.Date.Format(util.DateLayout),
					Hours:       u.Hours,
					ManhourID:   manhourID,
					SubmittedAt: a.Now(),
				})
				if sink != nil {
					sink.record(ctx, u, desc)
				}
			}

			result, batchErr := a.sheet.BatchSubmit(ctx, req)
			res.Result = result
			j.Finish(res.BatchID, result.Success, result.Errors)
			if err := j.Save(); err != nil {
				a.Logger.Warn("could not save journal", zap.Error(err))
			}
			if sink != nil {
				sink.finish()
			}
			if batchErr != nil && result.SubmittedCount == 0 {
				return batchErr
			}

			if err := a.render(res, func(w io.Writer) {
				var h float64
				for _, u := range res.Units {
					h += u.Hours
				}
				fmt.Fprintf(w, "Submitted %d units, %sh (batch %s)\n", result.SubmittedCount, util.FormatHours(h), res.BatchID)
				for _, msg := range result.Errors {
					fmt.Fprintf(w, "! %s\n", msg)
				}
			}); err != nil {
				return err
			}
			return batchErr
		},
	}
	cmd.Flags().Float64Var(&total, "total", 0, "hours to spread over the range")
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD")
	cmd.Flags().StringArrayVar(&taskFlags, "task", nil, "task ID with optional ratio, id[=ratio]; repeatable")
	cmd.Flags().BoolVar(&includeWeekends, "include-weekends", false, "also fill Saturdays and Sundays")
	cmd.Flags().BoolVar(&noDeduct, "no-deduct", false, "do not subtract hours already logged")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the plan without submitting")
	cmd.Flags().BoolVar(&mirror, "mirror", false, "also write each unit to Google Calendar")
	cmd.Flags().StringVar(&desc, "desc", "", "description for every unit")
	_ = cmd.MarkFlagRequired("total")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func (a *App) renderPlan(plan *timesheet.Plan) error {
	return a.render(plan, func(w io.Writer) {
		fmt.Fprintf(w, "%d work days, %sh logged, %sh to submit\n\n",
			len(plan.WorkDays), util.FormatHours(plan.Logged), util.FormatHours(plan.Remaining))
		row(w, "TASK", "DATE", "HOURS")
		for _, u := range plan.Units {
			row(w, u.TaskID, u.Date.Format(util.DateLayout), util.FormatHours(u.Hours))
		}
		row(w, "TOTAL", "", util.FormatHours(plan.Hours()))
	})
}

func (a *App) journalCmd() *cobra.Command {
	var keepDays int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List the batches autofill has written",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.openJournal()
			if err != nil {
				return err
			}
			if keepDays > 0 {
				if swept := j.Sweep(a.Now().AddDate(0, 0, -keepDays)); len(swept) > 0 {
					a.Logger.Debug("pruned journal", zap.Int("batches", len(swept)))
				}
			}
			batches := j.List()
			return a.render(batches, func(w io.Writer) {
				row(w, "BATCH", "STARTED", "RANGE", "UNITS", "HOURS", "STATUS")
				for _, b := range batches {
					status := "complete"
					if !b.Success {
						status = "stopped"
					}
					row(w, b.ID, b.StartedAt.Format("2006-01-02 15:04"), b.From+".."+b.To,
						len(b.Entries), util.FormatHours(b.Hours()), status)
				}
			})
		},
	}
	cmd.Flags().IntVar(&keepDays, "keep-days", 90, "forget batches older than this many days; 0 keeps all")
	cmd.AddCommand(a.journalShowCmd())
	return cmd
}

func (a *App) journalShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [batch-id]",
		Short: "Show the units of one batch (default: the latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.openJournal()
			if err != nil {
				return err
			}
			var b journal.Batch
			found := false
			if len(args) == 0 {
				b, found = j.Last()
			} else {
				for _, cand := range j.List() {
					if cand.ID == args[0] {
						b, found = cand, true
						break
					}
				}
			}
			if !found {
				return apperr.NewBusiness("no such batch in the journal")
			}
			return a.render(b, func(w io.Writer) {
				row(w, "TASK", "DATE", "HOURS", "MANHOUR")
				for _, e := range b.Entries {
					row(w, e.TaskID, e.Date, util.FormatHours(e.Hours), e.ManhourID)
				}
				for _, msg := range b.Errors {
					fmt.Fprintf(w, "! %s\n", msg)
				}
			})
		},
	}
}
