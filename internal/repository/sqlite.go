package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mr1hm/go-relief-pipeline/internal/models"
	_ "modernc.org/sqlite"
)

// Fixed-width UTC layout so text timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// Each statement is a single atomic write; one connection also keeps
	// ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS incidents (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			reporter TEXT,
			text TEXT,
			lat REAL,
			lon REAL,
			severity TEXT,
			triage_ts TEXT,
			raw_json TEXT,
			allocation TEXT,
			allocated_at TEXT
		);

		CREATE TABLE IF NOT EXISTS seen_items (
			item_hash TEXT PRIMARY KEY,
			seen_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS geocode_cache (
			place_text TEXT PRIMARY KEY,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			cached_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS transitions (
			envelope_id TEXT PRIMARY KEY,
			incident_id TEXT,
			kind TEXT NOT NULL,
			sender TEXT NOT NULL,
			receiver TEXT NOT NULL,
			ts TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_incidents_order ON incidents(COALESCE(triage_ts, created_at));
		CREATE INDEX IF NOT EXISTS idx_transitions_incident_id ON transitions(incident_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) SaveIncident(ctx context.Context, inc *models.Incident) error {
	if inc.ID == "" {
		return errors.New("incident id is required")
	}

	createdAt := inc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var allocation sql.NullString
	if inc.Allocation != nil {
		b, err := json.Marshal(inc.Allocation)
		if err != nil {
			return fmt.Errorf("error encoding allocation: %w", err)
		}
		allocation = sql.NullString{String: string(b), Valid: true}
	}

	var severity sql.NullString
	if inc.Severity != "" {
		severity = sql.NullString{String: string(inc.Severity), Valid: true}
	}

	var raw sql.NullString
	if len(inc.RawJSON) > 0 {
		raw = sql.NullString{String: string(inc.RawJSON), Valid: true}
	}

	query := `
		INSERT OR REPLACE INTO incidents
			(id, created_at, reporter, text, lat, lon, severity, triage_ts, raw_json, allocation, allocated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		inc.ID,
		formatTime(createdAt),
		inc.Reporter,
		inc.Text,
		nullFloat(inc.Lat),
		nullFloat(inc.Lon),
		severity,
		nullTime(inc.TriageTS),
		raw,
		allocation,
		nullTime(inc.AllocatedAt),
	)
	if err != nil {
		return fmt.Errorf("error saving incident %s: %w", inc.ID, err)
	}
	return nil
}

func (s *SQLiteDB) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	query := `
		SELECT id, created_at, reporter, text, lat, lon, severity, triage_ts, raw_json, allocation, allocated_at
		FROM incidents
		WHERE id = ?
	`
	inc, err := scanIncident(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting incident %s: %w", id, err)
	}
	return inc, nil
}

func (s *SQLiteDB) ListIncidents(ctx context.Context, limit int) ([]models.Incident, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, created_at, reporter, text, lat, lon, severity, triage_ts, raw_json, allocation, allocated_at
		FROM incidents
		ORDER BY COALESCE(triage_ts, created_at) DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]models.Incident, 0, limit)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning incident row: %w", err)
		}
		incidents = append(incidents, *inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating incidents: %w", err)
	}
	return incidents, nil
}

func (s *SQLiteDB) MarkSeen(ctx context.Context, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO seen_items (item_hash, seen_at) VALUES (?, ?)`,
		hash, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("error marking item seen: %w", err)
	}
	return nil
}

func (s *SQLiteDB) IsSeen(ctx context.Context, hash string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM seen_items WHERE item_hash = ?`, hash).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error checking seen item: %w", err)
	}
	return true, nil
}

func (s *SQLiteDB) CacheGeocode(ctx context.Context, place string, c models.Coordinates) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO geocode_cache (place_text, lat, lon, cached_at) VALUES (?, ?, ?, ?)`,
		place, c.Latitude, c.Longitude, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("error caching geocode: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetCachedGeocode(ctx context.Context, place string) (*models.Coordinates, error) {
	var c models.Coordinates
	err := s.db.QueryRowContext(ctx,
		`SELECT lat, lon FROM geocode_cache WHERE place_text = ?`, place,
	).Scan(&c.Latitude, &c.Longitude)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading geocode cache: %w", err)
	}
	return &c, nil
}

func (s *SQLiteDB) RecordTransition(ctx context.Context, t *models.Transition) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO transitions (envelope_id, incident_id, kind, sender, receiver, ts)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.EnvelopeID, t.IncidentID, string(t.Kind), t.Sender, t.Receiver, formatTime(t.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("error recording transition: %w", err)
	}
	return nil
}

func (s *SQLiteDB) ListTransitions(ctx context.Context, incidentID string) ([]models.Transition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT envelope_id, incident_id, kind, sender, receiver, ts
		FROM transitions
		WHERE incident_id = ?
		ORDER BY ts ASC, rowid ASC
	`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("error listing transitions: %w", err)
	}
	defer rows.Close()

	var transitions []models.Transition
	for rows.Next() {
		var (
			t    models.Transition
			kind string
			ts   string
		)
		if err := rows.Scan(&t.EnvelopeID, &t.IncidentID, &kind, &t.Sender, &t.Receiver, &ts); err != nil {
			return nil, fmt.Errorf("error scanning transition row: %w", err)
		}
		t.Kind = models.Kind(kind)
		if t.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		transitions = append(transitions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transitions: %w", err)
	}
	return transitions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanIncident converts one incidents row into the canonical model.
func scanIncident(row rowScanner) (*models.Incident, error) {
	var (
		inc         models.Incident
		createdAt   string
		reporter    sql.NullString
		text        sql.NullString
		lat, lon    sql.NullFloat64
		severity    sql.NullString
		triageTS    sql.NullString
		raw         sql.NullString
		allocation  sql.NullString
		allocatedAt sql.NullString
	)
	err := row.Scan(&inc.ID, &createdAt, &reporter, &text, &lat, &lon,
		&severity, &triageTS, &raw, &allocation, &allocatedAt)
	if err != nil {
		return nil, err
	}

	if inc.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	inc.Reporter = reporter.String
	inc.Text = text.String
	if lat.Valid {
		inc.Lat = &lat.Float64
	}
	if lon.Valid {
		inc.Lon = &lon.Float64
	}
	inc.Severity = models.Severity(severity.String)
	if inc.TriageTS, err = parseNullTime(triageTS); err != nil {
		return nil, err
	}
	if raw.Valid {
		inc.RawJSON = json.RawMessage(raw.String)
	}
	if allocation.Valid {
		if err := json.Unmarshal([]byte(allocation.String), &inc.Allocation); err != nil {
			return nil, fmt.Errorf("error decoding allocation for %s: %w", inc.ID, err)
		}
	}
	if inc.AllocatedAt, err = parseNullTime(allocatedAt); err != nil {
		return nil, err
	}
	return &inc, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
