package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tpm/internal/app"
	"tpm/internal/domain"
	"tpm/internal/engine"
	"tpm/internal/engine/auth"
)

func shiftCmd() *cobra.Command {
	shift := &cobra.Command{Use: "shift", Short: "Inspect shifts"}
	shift.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List shifts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), auth.PermShiftRead, func(ctx context.Context, w *app.Workspace, _ auth.Actor) error {
				shifts, err := w.Engine.ListShifts(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(shifts)
				}
				rows := make([]table.Row, 0, len(shifts))
				for _, s := range shifts {
					rows = append(rows, table.Row{s.Name, s.StartTime, s.EndTime, s.ActiveDays, s.DisplayOrder, s.Active})
				}
				renderTable(table.Row{"Shift", "Start", "End", "Days", "Order", "Active"}, rows)
				return nil
			})
		},
	})
	shift.AddCommand(&cobra.Command{
		Use:   "active",
		Short: "Show the shift on duty now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), auth.PermShiftRead, func(ctx context.Context, w *app.Workspace, _ auth.Actor) error {
				res, err := w.Engine.ActiveShift(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if res.Matched {
					fmt.Printf("Shift %s (%s)\n", res.Name, res.Timestamp)
				} else {
					fmt.Printf("Shift %s (%s, %s)\n", res.Name, res.Timestamp, res.Note)
				}
				return nil
			})
		},
	})
	shift.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Write the shifts from tpm.yml to the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), auth.PermShiftWrite, func(ctx context.Context, w *app.Workspace, actor auth.Actor) error {
				n, err := w.Engine.SyncShifts(ctx, actor.Username)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]int{"shifts": n})
				}
				fmt.Printf("Synced %d shifts\n", n)
				return nil
			})
		},
	})
	return shift
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage maintenance tasks"}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskCompleteCmd())
	task.AddCommand(taskUndoCmd())
	task.AddCommand(taskHistoryCmd())
	return task
}

func taskRows(tasks []domain.TaskView) []table.Row {
	rows := make([]table.Row, 0, len(tasks))
	for _, t := range tasks {
		shift := t.AssignedShift
		if shift == "" {
			shift = "All"
		}
		rows = append(rows, table.Row{t.ID, t.Name, shift, t.Priority, t.Status, t.NextDue, orDash(t.LastCompletedAt)})
	}
	return rows
}

var taskHeader = table.Row{"ID", "Task", "Shift", "Priority", "Status", "Next Due", "Last Completed"}

func taskListCmd() *cobra.Command {
	var q engine.TaskQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active tasks with their due state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), auth.PermTaskRead, func(ctx context.Context, w *app.Workspace, actor auth.Actor) error {
				q.UserShift = actor.Shift
				tasks, err := w.Engine.ListTasks(ctx, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				renderTable(taskHeader, taskRows(tasks))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&q.Shift, "shift", "", "shift filter (unassigned tasks always match)")
	cmd.Flags().BoolVar(&q.MyShiftOnly, "my-shift", false, "only tasks for the actor's shift")
	cmd.Flags().StringVar(&q.Status, "status", "", "completed, overdue, due or upcoming")
	cmd.Flags().StringVar(&q.Priority, "priority", "", "low, medium or high")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), auth.PermTaskRead, func(ctx context.Context, w *app.Workspace, _ auth.Actor) error {
				t, err := w.Engine.GetTask(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendRows([]table.Row{
					{"ID", t.ID},
					{"Name", t.Name},
					{"Description", orDash(t.Description)},
					{"Interval", fmt.Sprintf("%s every %d day(s)", t.IntervalType, t.IntervalDays)},
					{"Shift", orDash(t.AssignedShift)},
					{"Category", orDash(t.Category)},
					{"Priority", t.Priority},
					{"Procedure", orDash(t.ProcedureLink)},
					{"Active", t.Active},
					{"Status", t.Status},
					{"Next Due", t.NextDue},
					{"Hours Until Due", t.HoursUntilDue},
					{"Last Completed", orDash(t.LastCompletedAt)},
					{"Completed By", orDash(t.LastCompletedBy)},
					{"Completions", t.CompletionCount},
				})
				for _, warn := range t.Warnings {
					tw.AppendRow(table.Row{"Warning", warn.Detail})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), auth.PermTaskWrite, func(ctx context.Context, w *app.Workspace, actor auth.Actor) error {
				opts.Actor = actor.Username
				t, err := w.Engine.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("Created task %d, next due %s\n", t.ID, t.NextDue)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "task name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().IntVar(&opts.IntervalDays, "interval-days", 1, "days between occurrences")
	cmd.Flags().StringVar(&opts.IntervalType, "interval-type", "start_shift_daily", "start_shift_daily, start_shift_weekly, end_shift_daily, end_shift_weekly or legacy")
	cmd.Flags().StringVar(&opts.AssignedShift, "shift", "", "assigned shift (empty for all shifts)")
	cmd.Flags().StringVar(&opts.Category, "category", "", "category")
	cmd.Flags().StringVar(&opts.Priority, "priority", engine.PriorityMedium, "low, medium or high")
	cmd.Flags().StringVar(&opts.ProcedureLink, "procedure", "", "procedure link")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var (
		name, description, intervalType, shift, category, priority, procedure string
		intervalDays                                                          int
		active                                                                bool
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			opts := engine.TaskUpdateOptions{ID: id}
			flags := cmd.Flags()
			if flags.Changed("name") {
				opts.Name = &name
			}
			if flags.Changed("description") {
				opts.Description = &description
			}
			if flags.Changed("interval-days") {
				opts.IntervalDays = &intervalDays
			}
			if flags.Changed("interval-type") {
				opts.IntervalType = &intervalType
			}
			if flags.Changed("shift") {
				opts.AssignedShift = &shift
			}
			if flags.Changed("category") {
				opts.Category = &category
			}
			if flags.Changed("priority") {
				opts.Priority = &priority
			}
			if flags.Changed("procedure") {
				opts.ProcedureLink = &procedure
			}
			if flags.Changed("active") {
				opts.Active = &active
			}
			return withActor(cmd.Context(), auth.PermTaskWrite, func(ctx context.Context, w *app.Workspace, actor auth.Actor) error {
				opts.Actor = actor.Username
				t, err := w.Engine.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("Updated task %d, next due %s\n", t.ID, t.NextDue)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "task name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().IntVar(&intervalDays, "interval-days", 1, "days between occurrences")
	cmd.Flags().StringVar(&intervalType, "interval-type", "", "interval type")
	cmd.Flags().StringVar(&shift, "shift", "", "assigned shift (empty for all shifts)")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium or high")
	cmd.Flags().StringVar(&procedure, "procedure", "", "procedure link")
	cmd.Flags().BoolVar(&active, "active", true, "reactivate or deactivate")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Deactivate a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), auth.PermTaskWrite, func(ctx context.Context, w *app.Workspace, actor auth.Actor) error {
				if err := w.Engine.DeleteTask(ctx, id, actor.Username); err != nil {
					return err
				}
				fmt.Printf("Deactivated task %d\n", id)
				return nil
			})
		},
	}
}

func taskCompleteCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Record a completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), auth.PermTaskComplete, func(ctx context.Context, w *app.Workspace, actor auth.Actor) error {
				c, err := w.Engine.CompleteTask(ctx, id, actor.Username, notes)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(c)
				}
				fmt.Printf("Completed task %d at %s\n", id, c.CompletedAt)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "completion notes")
	return cmd
}

func taskUndoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undo <id>",
		Short: "Remove the latest completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), auth.PermTaskUndo, func(ctx context.Context, w *app.Workspace, actor auth.Actor) error {
				c, err := w.Engine.UndoCompletion(ctx, id, actor.Username)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(c)
				}
				fmt.Printf("Removed completion of task %d from %s\n", id, c.CompletedAt)
				return nil
			})
		},
	}
}

func taskHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Completion history, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), auth.PermTaskRead, func(ctx context.Context, w *app.Workspace, _ auth.Actor) error {
				history, err := w.Engine.TaskHistory(ctx, id, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(history)
				}
				rows := make([]table.Row, 0, len(history))
				for _, c := range history {
					rows = append(rows, table.Row{c.CompletedAt, c.CompletedBy, orDash(c.Notes)})
				}
				renderTable(table.Row{"Completed At", "By", "Notes"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", engine.DefaultHistoryLimit, "maximum entries")
	return cmd
}

func permissiveCmd() *cobra.Command {
	var shift string
	cmd := &cobra.Command{
		Use:   "permissive",
		Short: "Report whether production may run for a shift",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), auth.PermIntegration, func(ctx context.Context, w *app.Workspace, _ auth.Actor) error {
				res, err := w.Engine.RunPermissive(ctx, shift)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if res.RunPermissive {
					fmt.Printf("Shift %s: run permissive\n", res.Shift)
					return nil
				}
				fmt.Printf("Shift %s: blocked (%s)\n", res.Shift, res.Reason)
				for _, name := range res.OverdueTasks {
					fmt.Printf("  overdue: %s\n", name)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&shift, "shift", "", "shift (default: default_shift)")
	return cmd
}
