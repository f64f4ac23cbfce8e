package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tpm/internal/config"
	"tpm/internal/domain"
	"tpm/internal/events"
	"tpm/internal/repo"
	"tpm/internal/schedule"
)

// Version is reported by health checks and data exports.
const Version = "2.0"

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
	Logger *slog.Logger
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{Now: time.Now},
		Config: cfg,
		Now:    time.Now,
		Logger: slog.Default(),
	}
}

// ValidationError rejects bad input before anything is written.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

var errNoConfig = errors.New("config not loaded")

// now is the current time in the site timezone.
func (e Engine) now() time.Time {
	t := time.Now()
	if e.Now != nil {
		t = e.Now()
	}
	return t.In(e.location())
}

func (e Engine) location() *time.Location {
	if e.Config == nil {
		return time.Local
	}
	loc, err := e.Config.Location()
	if err != nil {
		return time.Local
	}
	return loc
}

// stamp is the stored form of now.
func (e Engine) stamp() string {
	return schedule.FormatTimestamp(e.now())
}

// Timestamp is the current site-local time in the stored format.
func (e Engine) Timestamp() string {
	return e.stamp()
}

func (e Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) defaultShift() string {
	if e.Config == nil {
		return ""
	}
	return e.Config.DefaultShift
}

// Calendar snapshots the active shifts. Definitions that cannot be used are
// logged and left out.
func (e Engine) Calendar(ctx context.Context) (*schedule.Calendar, error) {
	shifts, err := e.Repo.ListShifts(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}
	defs := make([]schedule.ShiftDef, 0, len(shifts))
	for _, s := range shifts {
		defs = append(defs, s.Def())
	}
	cal, anomalies := schedule.NewCalendar(e.defaultShift(), defs...)
	for _, a := range anomalies {
		e.log().WarnContext(ctx, "shift definition skipped", "shift", a.Subject, "kind", string(a.Kind), "detail", a.Detail)
	}
	return cal, nil
}

func (e Engine) logAnomalies(ctx context.Context, taskID int64, anomalies []schedule.Anomaly) {
	for _, a := range anomalies {
		e.log().WarnContext(ctx, "schedule anomaly", "task_id", taskID, "kind", string(a.Kind), "subject", a.Subject, "detail", a.Detail)
	}
}

// ListShifts returns every stored shift, active or not.
func (e Engine) ListShifts(ctx context.Context) ([]domain.Shift, error) {
	return e.Repo.ListShifts(ctx, false)
}

// ActiveShiftResult is the shift on duty at a given instant.
type ActiveShiftResult struct {
	schedule.ActiveShift
	Timestamp string `json:"timestamp"`
}

func (e Engine) ActiveShift(ctx context.Context) (ActiveShiftResult, error) {
	cal, err := e.Calendar(ctx)
	if err != nil {
		return ActiveShiftResult{}, err
	}
	now := e.now()
	return ActiveShiftResult{ActiveShift: cal.ResolveActiveShift(now), Timestamp: schedule.FormatTimestamp(now)}, nil
}

// SyncShifts writes the configured shift definitions to the database.
func (e Engine) SyncShifts(ctx context.Context, actor string) (int, error) {
	if e.Config == nil {
		return 0, errNoConfig
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	n, err := e.upsertConfiguredShifts(ctx, tx, actor)
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func (e Engine) upsertConfiguredShifts(ctx context.Context, tx *sql.Tx, actor string) (int, error) {
	for _, sc := range e.Config.Shifts {
		def := sc.Def()
		s := domain.Shift{
			Name:         def.Name,
			StartTime:    def.Start,
			EndTime:      def.End,
			ActiveDays:   def.Days,
			DisplayOrder: def.DisplayOrder,
			Active:       def.Active,
		}
		if err := e.Repo.UpsertShift(ctx, tx, s); err != nil {
			return 0, fmt.Errorf("upsert shift %s: %w", s.Name, err)
		}
		if err := e.Events.Append(ctx, tx, events.ShiftUpserted, "shift", s.Name, actor, events.EventPayload{
			"start_time": s.StartTime, "end_time": s.EndTime, "active_days": s.ActiveDays,
		}); err != nil {
			return 0, err
		}
	}
	return len(e.Config.Shifts), nil
}

// ListEvents returns the event log in id order.
func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	if f.Limit > 500 {
		f.Limit = 500
	}
	return e.Repo.ListEvents(ctx, f)
}
