// Package samplestore persists sample runs: the packed samples of every
// member of a measurement list together with what produced them.
package samplestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/mpmeasure/internal/utils"
)

// ErrNotFound is returned by Get for unknown run ids.
var ErrNotFound = errors.New("run not found")

// Run describes a stored sample run
type Run struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	POVM      string    `json:"povm"`
	StateMode string    `json:"state_mode"`
	Method    string    `json:"method"`
	Members   int       `json:"members"`
	Samples   int       `json:"samples"`
	Archived  bool      `json:"archived"`
}

// Payload holds the samples of a run. Packed[i] are the packed samples of
// member i, whose non-trivial outcome dimensions are Dims[i].
type Payload struct {
	Dims   [][]int      `msgpack:"dims" json:"dims"`
	Packed [][][]uint64 `msgpack:"packed" json:"packed"`
	Seed   uint64       `msgpack:"seed" json:"seed"`
}

// Encode serializes p with msgpack.
func (p *Payload) Encode() ([]byte, error) {
	return msgpack.Marshal(p)
}

// DecodePayload reverses Payload.Encode.
func DecodePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return &p, nil
}

// Repository stores runs in the runs table
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new run repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "runs").Logger(),
	}
}

// Save stores a run and its payload. A missing id or creation time is
// filled in. The stored run is returned.
func (r *Repository) Save(ctx context.Context, run Run, payload *Payload) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	blob, err := payload.Encode()
	if err != nil {
		return Run{}, fmt.Errorf("failed to encode payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, povm, state_mode, method, members, samples, archived, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.CreatedAt.UnixNano(), run.POVM, run.StateMode, run.Method,
		run.Members, run.Samples, boolToInt(run.Archived), blob)
	if err != nil {
		return Run{}, fmt.Errorf("failed to insert run: %w", err)
	}

	r.log.Debug().
		Str("id", run.ID).
		Int("members", run.Members).
		Int("bytes", len(blob)).
		Msg("Stored run")
	return run, nil
}

// Get returns a run and its payload.
func (r *Repository) Get(ctx context.Context, id string) (*Run, *Payload, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, created_at, povm, state_mode, method, members, samples, archived, payload
		FROM runs WHERE id = ?
	`, id)

	var blob []byte
	run, err := scanRun(row, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	payload, err := DecodePayload(blob)
	if err != nil {
		return nil, nil, err
	}
	return run, payload, nil
}

// List returns the most recent runs, newest first. limit <= 0 means no
// limit.
func (r *Repository) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, created_at, povm, state_mode, method, members, samples, archived
		FROM runs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// MarkArchived flags a run as uploaded to the archive.
func (r *Repository) MarkArchived(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE runs SET archived = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark run %s archived: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteOlderThan removes runs created before cutoff and returns how many
// were removed.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	done := utils.MeasureDBQuery("delete_old_runs", r.log)
	res, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	done(n)
	if n > 0 {
		r.log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("Deleted old runs")
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner, blob *[]byte) (*Run, error) {
	var (
		run      Run
		created  int64
		archived int
	)
	dest := []any{&run.ID, &created, &run.POVM, &run.StateMode, &run.Method,
		&run.Members, &run.Samples, &archived}
	if blob != nil {
		dest = append(dest, blob)
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	run.CreatedAt = time.Unix(0, created).UTC()
	run.Archived = archived != 0
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
