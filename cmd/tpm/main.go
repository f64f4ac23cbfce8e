package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tpm/internal/app"
	"tpm/internal/config"
	"tpm/internal/engine/auth"
	"tpm/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tpm",
	Short: "Shift-aware preventive maintenance tracker",
	Long: `tpm tracks recurring maintenance tasks against a plant's shift calendar.
- Shifts: named daily windows (A, B, C, D by default) that may cross midnight.
- Tasks: recur daily or weekly at shift start or end; each completion moves the next due time.
- Status: completed for the current period, overdue, due within 24h, or upcoming.
- Run permissive: false while a high priority task for the shift is overdue.
- Event log: every change is recorded; view with 'tpm log'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogger(viper.GetString("log-format"), viper.GetString("log-level"))
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TPM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor", "", "username to act as (default: the seeded admin)")
	flags.String("jwt-secret", "", "secret for signing API tokens (overrides tpm.yml)")
	flags.String("log-format", "text", "log format: text or json")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	for _, name := range []string{"workspace", "json", "actor", "jwt-secret", "log-format", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(shiftCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(permissiveCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(dataCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
}

func setupLogger(format, level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid --log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid --log-format %q", format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

func initCmd() *cobra.Command {
	var site string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write tpm.yml and seed the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if err := os.MkdirAll(workspace, 0o755); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(site)), 0o644); err != nil {
				return err
			}
			w, err := app.Open(cmd.Context(), workspace, slog.Default())
			if err != nil {
				return err
			}
			defer w.Close()
			shifts, err := w.Engine.ListShifts(cmd.Context())
			if err != nil {
				return err
			}
			users, err := w.Engine.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"config": path, "shifts": len(shifts), "users": len(users)})
			}
			fmt.Printf("Initialized %s (%d shifts, %d users)\n", path, len(shifts), len(users))
			if w.Config.Seed.Admin.Password != "" {
				fmt.Printf("Sign in as %s and change the default password.\n", w.Config.Seed.Admin.Username)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&site, "site", "TPM System", "site name")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing tpm.yml")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w, err := openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer w.Close()
			if strings.TrimSpace(w.Config.Server.JWTSecret) == "" {
				return errors.New("a JWT secret is required: set server.jwt_secret, --jwt-secret or TPM_JWT_SECRET")
			}
			if addr == "" {
				addr = w.Config.Server.Addr
			}
			if basePath == "" {
				basePath = w.Config.Server.BasePath
			}
			logger := slog.Default()
			handler, err := server.New(server.Config{Engine: w.Engine, BasePath: basePath, Logger: logger})
			if err != nil {
				return err
			}
			server.NewWebhookDispatcher(w.Engine, logger).Start(ctx)

			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error("shutdown", "error", err)
				}
			}()
			logger.Info("serving TPM API", "addr", addr, "base_path", basePath, "docs", "/docs")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	_ = viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}

// --- helpers ---

func openWorkspace(ctx context.Context) (*app.Workspace, error) {
	w, err := app.Open(ctx, viper.GetString("workspace"), slog.Default())
	if err != nil {
		return nil, err
	}
	if secret := viper.GetString("jwt-secret"); secret != "" {
		w.Config.Server.JWTSecret = secret
	}
	if addr := viper.GetString("addr"); addr != "" {
		w.Config.Server.Addr = addr
	}
	return w, nil
}

// withActor opens the workspace and runs fn as the --actor user once it holds
// perm.
func withActor(ctx context.Context, perm string, fn func(context.Context, *app.Workspace, auth.Actor) error) error {
	w, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer w.Close()
	actor, err := app.ResolveActor(ctx, w, viper.GetString("actor"))
	if err != nil {
		return err
	}
	if perm != "" {
		if err := actor.Require(perm); err != nil {
			return fmt.Errorf("%s: %w", actor.Username, err)
		}
	}
	return fn(ctx, w, actor)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderTable(header table.Row, rows []table.Row) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
