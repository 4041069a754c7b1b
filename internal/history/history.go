// Package history persists announcements and menu transitions to SQLite so
// users can recall what was just spoken and profile authors can replay a
// session's detection behavior.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/menuvox/menuvox/internal/events"
	"github.com/menuvox/menuvox/internal/history/migrations"

	"github.com/google/uuid"
	cronlib "github.com/robfig/cron/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

const defaultQueryLimit = 50

// Announcement is one spoken utterance.
type Announcement struct {
	ID        string    `json:"id"`
	MenuID    string    `json:"menu_id,omitempty"`
	Element   string    `json:"element,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Transition is one active-menu change, detected or manual.
type Transition struct {
	ID        string    `json:"id"`
	FromMenu  string    `json:"from_menu,omitempty"`
	ToMenu    string    `json:"to_menu,omitempty"`
	Manual    bool      `json:"manual"`
	CreatedAt time.Time `json:"created_at"`
}

// Store wraps the history database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	cron   *cronlib.Cron
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open opens (creating if needed) the history database at path and runs
// migrations.
func Open(path string, opts ...Option) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// WAL mode and a single connection. SQLite doesn't handle concurrent
	// writers well; all access is serialized through this one connection.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &Store{
		db:     db,
		logger: slog.Default().With("component", "history"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Debug("history database ready", "path", path)
	return s, nil
}

// Close stops the pruning schedule and closes the database.
func (s *Store) Close() error {
	if s.cron != nil {
		s.cron.Stop()
	}
	return s.db.Close()
}

// RecordAnnouncement inserts one announcement row. A zero ID or timestamp is
// filled in.
func (s *Store) RecordAnnouncement(ctx context.Context, a Announcement) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO announcements (id, menu_id, element, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.MenuID, a.Element, a.Text, a.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record announcement: %w", err)
	}
	return nil
}

// RecordTransition inserts one menu transition row.
func (s *Store) RecordTransition(ctx context.Context, tr Transition) error {
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = time.Now()
	}
	manual := 0
	if tr.Manual {
		manual = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO menu_transitions (id, from_menu, to_menu, manual, created_at) VALUES (?, ?, ?, ?, ?)`,
		tr.ID, tr.FromMenu, tr.ToMenu, manual, tr.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// RecentAnnouncements returns the newest rows first.
func (s *Store) RecentAnnouncements(ctx context.Context, limit int) ([]Announcement, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, menu_id, element, text, created_at FROM announcements ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query announcements: %w", err)
	}
	defer rows.Close()

	var out []Announcement
	for rows.Next() {
		var a Announcement
		var created int64
		if err := rows.Scan(&a.ID, &a.MenuID, &a.Element, &a.Text, &created); err != nil {
			return nil, fmt.Errorf("scan announcement: %w", err)
		}
		a.CreatedAt = time.Unix(created, 0)
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecentTransitions returns the newest rows first.
func (s *Store) RecentTransitions(ctx context.Context, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, from_menu, to_menu, manual, created_at FROM menu_transitions ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var tr Transition
		var manual int
		var created int64
		if err := rows.Scan(&tr.ID, &tr.FromMenu, &tr.ToMenu, &manual, &created); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.Manual = manual != 0
		tr.CreatedAt = time.Unix(created, 0)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// Prune deletes rows older than the retention window from both tables and
// returns how many went.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	var total int64
	for _, table := range []string{"announcements", "menu_transitions"} {
		res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE created_at < ?`, cutoff)
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// SchedulePruning runs Prune on the given cron schedule until Close.
func (s *Store) SchedulePruning(spec string, retention time.Duration) error {
	if s.cron == nil {
		s.cron = cronlib.New()
	}
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := s.Prune(ctx, retention)
		if err != nil {
			s.logger.Warn("history pruning failed", "error", err)
			return
		}
		if n > 0 {
			s.logger.Info("pruned history rows", "rows", n)
		}
	})
	if err != nil {
		return fmt.Errorf("bad prune schedule %q: %w", spec, err)
	}
	s.cron.Start()
	return nil
}

// Attach subscribes the store to the event bus so announcements and menu
// changes are recorded as they happen. The returned func detaches it.
func (s *Store) Attach(bus *events.Bus) func() {
	annSub := events.Subscribe(bus, events.TopicAnnouncement, func(ctx context.Context, a events.Announcement) error {
		return s.RecordAnnouncement(ctx, Announcement{
			MenuID:    a.MenuID,
			Element:   a.Element,
			Text:      a.Text,
			CreatedAt: a.At,
		})
	})
	menuSub := events.Subscribe(bus, events.TopicMenuChanged, func(ctx context.Context, m events.MenuChanged) error {
		return s.RecordTransition(ctx, Transition{
			FromMenu:  m.Previous,
			ToMenu:    m.MenuID,
			Manual:    m.Manual,
			CreatedAt: m.At,
		})
	})
	return func() {
		annSub.Unsubscribe()
		menuSub.Unsubscribe()
	}
}
