package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tpm/internal/app"
	"tpm/internal/engine"
	"tpm/internal/engine/auth"
	"tpm/internal/repo"
)

func reportCmd() *cobra.Command {
	report := &cobra.Command{Use: "report", Short: "Completion reports"}
	report.AddCommand(reportSummaryCmd())
	report.AddCommand(reportExportCmd())
	return report
}

func addReportFlags(cmd *cobra.Command, q *engine.SummaryQuery) {
	cmd.Flags().StringVar(&q.Start, "start", "", "first day, YYYY-MM-DD (default 30 days ago)")
	cmd.Flags().StringVar(&q.End, "end", "", "last day, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&q.User, "user", "", "only completions by this user")
}

func reportSummaryCmd() *cobra.Command {
	var q engine.SummaryQuery
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Completions per task and overdue tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), auth.PermReportRead, func(ctx context.Context, w *app.Workspace, _ auth.Actor) error {
				s, err := w.Engine.Summary(ctx, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Printf("Completions %s to %s\n", s.DateRange.Start, s.DateRange.End)
				rows := make([]table.Row, 0, len(s.Completions))
				for _, c := range s.Completions {
					rows = append(rows, table.Row{c.TaskName, orDash(c.Category), c.CompletedBy, c.CompletionCount})
				}
				renderTable(table.Row{"Task", "Category", "By", "Count"}, rows)

				fmt.Println("Overdue")
				rows = make([]table.Row, 0, len(s.OverdueTasks))
				for _, o := range s.OverdueTasks {
					rows = append(rows, table.Row{o.TaskName, o.AssignedShift, o.Priority, o.NextDue, o.HoursOverdue, o.LastCompleted})
				}
				renderTable(table.Row{"Task", "Shift", "Priority", "Was Due", "Hours Overdue", "Last Completed"}, rows)
				return nil
			})
		},
	}
	addReportFlags(cmd, &q)
	return cmd
}

func reportExportCmd() *cobra.Command {
	var q engine.SummaryQuery
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write completions as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), auth.PermReportRead, func(ctx context.Context, w *app.Workspace, _ auth.Actor) error {
				var buf bytes.Buffer
				name, err := w.Engine.ExportCompletionsCSV(ctx, &buf, q)
				if err != nil {
					return err
				}
				if out == "-" {
					_, err := os.Stdout.Write(buf.Bytes())
					return err
				}
				if out == "" {
					out = name
				}
				if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", out)
				return nil
			})
		},
	}
	addReportFlags(cmd, &q)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, - for stdout (default: suggested name)")
	return cmd
}

func dataCmd() *cobra.Command {
	data := &cobra.Command{Use: "data", Short: "Move tasks, users and shifts between installations"}
	data.AddCommand(dataExportCmd())
	data.AddCommand(dataImportCmd())
	return data
}

func dataExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tasks, users and shifts as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), auth.PermDataExport, func(ctx context.Context, w *app.Workspace, actor auth.Actor) error {
				data, err := w.Engine.ExportData(ctx, actor.Username)
				if err != nil {
					return err
				}
				if out == "-" {
					return printJSON(data)
				}
				if out == "" {
					out = w.Engine.DataExportFilename()
				}
				b, err := json.MarshalIndent(data, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, b, 0o600); err != nil {
					return err
				}
				fmt.Printf("Exported %d tasks, %d users and %d shifts to %s\n", len(data.Tasks), len(data.Users), len(data.Shifts), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, - for stdout")
	return cmd
}

func dataImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import an export file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(filepath.Clean(args[0]))
			if err != nil {
				return err
			}
			var data engine.DataExport
			if err := json.Unmarshal(raw, &data); err != nil {
				return fmt.Errorf("invalid export file: %w", err)
			}
			return withActor(cmd.Context(), auth.PermDataImport, func(ctx context.Context, w *app.Workspace, actor auth.Actor) error {
				res, err := w.Engine.ImportData(ctx, data, actor.Username)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Imported %d tasks, %d users and %d shifts\n", res.Tasks, res.Users, res.Shifts)
				for _, s := range res.Skipped {
					fmt.Printf("  skipped: %s\n", s)
				}
				if res.Note != "" {
					fmt.Println(res.Note)
				}
				return nil
			})
		},
	}
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), auth.PermUserRead, func(ctx context.Context, w *app.Workspace, _ auth.Actor) error {
				users, err := w.Engine.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				rows := make([]table.Row, 0, len(users))
				for _, u := range users {
					rows = append(rows, table.Row{u.ID, u.Username, u.Role, orDash(u.Shift), u.CreatedAt})
				}
				renderTable(table.Row{"ID", "Username", "Role", "Shift", "Created"}, rows)
				return nil
			})
		},
	})
	user.AddCommand(userCreateCmd())
	user.AddCommand(userDeleteCmd())
	user.AddCommand(userPasswdCmd())
	return user
}

func userCreateCmd() *cobra.Command {
	var opts engine.UserCreateOptions
	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Username = args[0]
			return withActor(cmd.Context(), auth.PermUserWrite, func(ctx context.Context, w *app.Workspace, actor auth.Actor) error {
				opts.Actor = actor.Username
				u, err := w.Engine.CreateUser(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(u)
				}
				fmt.Printf("Created %s %s (id %d)\n", u.Role, u.Username, u.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Password, "password", "", "initial password")
	cmd.Flags().StringVar(&opts.Role, "role", auth.RoleOperator, "admin, operator or integration")
	cmd.Flags().StringVar(&opts.Shift, "shift", "", "home shift")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), auth.PermUserWrite, func(ctx context.Context, w *app.Workspace, actor auth.Actor) error {
				u, err := w.Engine.UserByName(ctx, args[0])
				if err != nil {
					return err
				}
				if err := w.Engine.DeleteUser(ctx, u.ID, actor.Username); err != nil {
					return err
				}
				fmt.Printf("Deleted %s\n", u.Username)
				return nil
			})
		},
	}
}

// userPasswdCmd changes the actor's own password when --current is given and
// otherwise resets another user's password, which needs user.write.
func userPasswdCmd() *cobra.Command {
	var current, next string
	cmd := &cobra.Command{
		Use:   "passwd [username]",
		Short: "Change or reset a password",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), "", func(ctx context.Context, w *app.Workspace, actor auth.Actor) error {
				target := actor.Username
				if len(args) == 1 {
					target = args[0]
				}
				if cmd.Flags().Changed("current") {
					if !actor.Is(target) {
						return errors.New("--current only applies to your own password")
					}
					if err := actor.Require(auth.PermPasswordChange); err != nil {
						return err
					}
					if err := w.Engine.ChangePassword(ctx, target, current, next); err != nil {
						return err
					}
					fmt.Println("Password changed")
					return nil
				}
				if err := actor.Require(auth.PermUserWrite); err != nil {
					return err
				}
				u, err := w.Engine.UserByName(ctx, target)
				if err != nil {
					return err
				}
				if _, err := w.Engine.UpdateUser(ctx, engine.UserUpdateOptions{ID: u.ID, Password: &next, Actor: actor.Username}); err != nil {
					return err
				}
				fmt.Printf("Password reset for %s\n", u.Username)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&current, "current", "", "current password")
	cmd.Flags().StringVar(&next, "new", "", "new password")
	_ = cmd.MarkFlagRequired("new")
	return cmd
}

func apikeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage API keys for integrations"}
	var name string
	create := &cobra.Command{
		Use:   "create <username>",
		Short: "Issue a key; the secret is shown once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), auth.PermAPIKeyManage, func(ctx context.Context, w *app.Workspace, actor auth.Actor) error {
				key, secret, err := w.Engine.CreateAPIKey(ctx, args[0], name, actor.Username)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"key": key, "secret": secret})
				}
				fmt.Printf("Key %s for %s\nSecret: %s\n", key.ID, key.Username, secret)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label for the key")
	keys.AddCommand(create)

	var user string
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), auth.PermAPIKeyManage, func(ctx context.Context, w *app.Workspace, _ auth.Actor) error {
				list, err := w.Engine.ListAPIKeys(ctx, user)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				rows := make([]table.Row, 0, len(list))
				for _, k := range list {
					rows = append(rows, table.Row{k.ID, k.Username, orDash(k.Name), k.CreatedAt})
				}
				renderTable(table.Row{"ID", "User", "Name", "Created"}, rows)
				return nil
			})
		},
	}
	list.Flags().StringVar(&user, "user", "", "only keys for this user")
	keys.AddCommand(list)

	keys.AddCommand(&cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), auth.PermAPIKeyManage, func(ctx context.Context, w *app.Workspace, actor auth.Actor) error {
				if err := w.Engine.RevokeAPIKey(ctx, args[0], actor.Username); err != nil {
					return err
				}
				fmt.Printf("Revoked %s\n", args[0])
				return nil
			})
		},
	})
	return keys
}

func logCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), auth.PermEventRead, func(ctx context.Context, w *app.Workspace, _ auth.Actor) error {
				evts, err := w.Engine.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				rows := make([]table.Row, 0, len(evts))
				for _, e := range evts {
					rows = append(rows, table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + orDash(e.EntityID), e.Actor})
				}
				renderTable(table.Row{"ID", "Time", "Type", "Entity", "Actor"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&f.After, "after", 0, "only events after this id")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id filter")
	return cmd
}
