package report

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pagelens/pagelens/internal/logging"
)

//go:embed schema.sql
var schemaFS embed.FS

// ErrNotFound is returned when a report reference is unknown or its file has
// already been swept.
var ErrNotFound = errors.New("report not found")

// Report is one registered, downloadable document.
type Report struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Path      string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry tracks generated report files in SQLite so the download endpoint
// can resolve references and the sweeper can enforce the TTL. Report files
// themselves live on disk next to the database.
type Registry struct {
	db     *sql.DB
	logger logging.Logger
}

// NewRegistry runs migrations from schema.sql and returns a Registry.
func NewRegistry(db *sql.DB, logger logging.Logger) (*Registry, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	return &Registry{
		db:     db,
		logger: logger.With(logging.Field{Key: "component", Value: "report.registry"}),
	}, nil
}

// Add registers a compiled report.
func (r *Registry) Add(ctx context.Context, rep *Report) error {
	if rep == nil || rep.ID == "" || rep.Path == "" {
		return fmt.Errorf("report id and path are required")
	}
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reports (id, url, path, created_at) VALUES (?, ?, ?, ?)`,
		rep.ID, rep.URL, rep.Path, rep.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert report %s: %w", rep.ID, err)
	}
	return nil
}

// Get resolves a report reference. Returns ErrNotFound when the row is
// missing or the underlying file no longer exists.
func (r *Registry) Get(ctx context.Context, id string) (*Report, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, url, path, created_at FROM reports WHERE id = ?`, id)

	var rep Report
	var createdAt int64
	if err := row.Scan(&rep.ID, &rep.URL, &rep.Path, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query report %s: %w", id, err)
	}
	rep.CreatedAt = time.Unix(createdAt, 0).UTC()

	if _, err := os.Stat(rep.Path); err != nil {
		// The file was removed out from under us; drop the stale row.
		_, _ = r.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
		return nil, ErrNotFound
	}

	return &rep, nil
}

// Delete removes a report row and its file.
func (r *Registry) Delete(ctx context.Context, id string) error {
	rep, err := r.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	if err := os.Remove(rep.Path); err != nil && !os.IsNotExist(err) {
		r.logger.Warn("removing report file",
			logging.Field{Key: "path", Value: rep.Path},
			logging.Field{Key: "error", Value: err.Error()})
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete report %s: %w", id, err)
	}
	return nil
}

// SweepExpired deletes all reports older than ttl, rows and files both, and
// returns how many were removed.
func (r *Registry) SweepExpired(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-ttl).Unix()

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, path FROM reports WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("query expired reports: %w", err)
	}
	defer rows.Close()

	type victim struct{ id, path string }
	var victims []victim
	for rows.Next() {
		var v victim
		if err := rows.Scan(&v.id, &v.path); err != nil {
			return 0, fmt.Errorf("scan expired report: %w", err)
		}
		victims = append(victims, v)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate expired reports: %w", err)
	}

	removed := 0
	for _, v := range victims {
		if err := os.Remove(v.path); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("sweeping report file",
				logging.Field{Key: "path", Value: v.path},
				logging.Field{Key: "error", Value: err.Error()})
		}
		if _, err := r.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, v.id); err != nil {
			r.logger.Warn("sweeping report row",
				logging.Field{Key: "report_id", Value: v.id},
				logging.Field{Key: "error", Value: err.Error()})
			continue
		}
		removed++
	}

	if removed > 0 {
		r.logger.Info("swept expired reports", logging.Field{Key: "removed", Value: removed})
	}
	return removed, nil
}

// StartSweeper runs SweepExpired every interval until ctx is canceled. This
// is the explicit lifecycle policy for report temp files: nothing lives
// longer than ttl.
func (r *Registry) StartSweeper(ctx context.Context, ttl, interval time.Duration) {
	if ttl <= 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.SweepExpired(ctx, ttl); err != nil {
					r.logger.Warn("report sweep failed", logging.Field{Key: "error", Value: err.Error()})
				}
			}
		}
	}()
}
