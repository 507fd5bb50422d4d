// Package journal keeps a bounded history of notifier events in SQLite so
// recent status lines and spoken messages can be listed after the fact.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/mqtt-voice/internal/notify"
)

const (
	defaultLimit = 50
	maxLimit     = 500

	// writeTimeout bounds one insert made from the notifier goroutine.
	writeTimeout = 5 * time.Second
)

// Filter controls which events List returns.
type Filter struct {
	Kind   notify.Kind // optional
	Limit  int         // default 50, max 500
	Offset int
}

// ListResult is one page of events, newest first.
type ListResult struct {
	Events []notify.Event `json:"events"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// Repository is the journal's storage contract.
type Repository interface {
	Append(ctx context.Context, e notify.Event) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// Logger is the logging surface the store needs.
type Logger interface {
	Warn(msg string, args ...any)
}

// SQLiteRepository stores events in the events table and trims it to
// the newest Retention rows after each insert.
//
// It also implements notify.Sink so it can be registered on a Notifier.
type SQLiteRepository struct {
	db        *sql.DB
	retention int
	logger    Logger
}

// NewSQLiteRepository creates a repository on db. retention <= 0 keeps
// every event. logger may be nil.
func NewSQLiteRepository(db *sql.DB, retention int, logger Logger) *SQLiteRepository {
	if logger == nil {
		logger = noopLogger{}
	}
	return &SQLiteRepository{db: db, retention: retention, logger: logger}
}

// Append inserts e. Events already stored (same id) are ignored.
func (r *SQLiteRepository) Append(ctx context.Context, e notify.Event) error {
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, e.Kind)
	}
	if e.ID == "" || e.Timestamp.IsZero() {
		stamped := notify.NewEvent(e.Kind, e.Text)
		if e.ID == "" {
			e.ID = stamped.ID
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = stamped.Timestamp
		}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO events (id, occurred_at, kind, text) VALUES (?, ?, ?, ?)`,
		e.ID,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		string(e.Kind),
		e.Text,
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	if r.retention > 0 {
		if _, err := r.Prune(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Prune deletes everything older than the newest Retention events and
// returns the number of rows removed.
func (r *SQLiteRepository) Prune(ctx context.Context) (int64, error) {
	if r.retention <= 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM events WHERE seq <= (
			SELECT seq FROM events ORDER BY seq DESC LIMIT 1 OFFSET ?
		)`,
		r.retention,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning events: %w", err)
	}
	return n, nil
}

// List returns events matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Kind != "" {
		if !filter.Kind.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidKind, filter.Kind)
		}
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM events " + where //nolint:gosec // WHERE built from parameterised conditions
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}

	query := "SELECT id, occurred_at, kind, text FROM events " + where + //nolint:gosec // WHERE built from parameterised conditions
		" ORDER BY seq DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := make([]notify.Event, 0, filter.Limit)
	for rows.Next() {
		var e notify.Event
		var occurredAt, kind string
		if err := rows.Scan(&e.ID, &occurredAt, &kind, &e.Text); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.Kind = notify.Kind(kind)
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, occurredAt) //nolint:errcheck // Written by Append
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	return &ListResult{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// Publish appends e, logging failures. It satisfies notify.Sink.
func (r *SQLiteRepository) Publish(e notify.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.Append(ctx, e); err != nil {
		r.logger.Warn("journal append failed", "event_id", e.ID, "error", err)
	}
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}
