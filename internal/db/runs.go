package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run ID does not exist in the database.
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded trajectory estimation run.
type Run struct {
	RunID          string    `json:"run_id"`
	CreatedAt      time.Time `json:"created_at"`
	Dataset        string    `json:"dataset"`
	SourceCSV      string    `json:"source_csv"`
	FramesTotal    int       `json:"frames_total"`
	FramesUsed     int       `json:"frames_used"`
	FramesSkipped  int       `json:"frames_skipped"`
	PatchRadius    int       `json:"patch_radius"`
	TopBias        float64   `json:"top_bias"`
	ReferenceTheta float64   `json:"reference_theta_rad"`
}

func (r *Run) String() string {
	return fmt.Sprintf(
		"RunID: %s, Dataset: %s, FramesUsed: %d/%d, Skipped: %d",
		r.RunID, r.Dataset, r.FramesUsed, r.FramesTotal, r.FramesSkipped,
	)
}

// Position is one estimated ego position within a run, in frame order.
type Position struct {
	Seq     int     `json:"seq"`
	FrameID int     `json:"frame_id"`
	Forward float64 `json:"forward_m"`
	Lateral float64 `json:"lateral_m"`
	CameraX float64 `json:"camera_x"`
	CameraY float64 `json:"camera_y"`
	CameraZ float64 `json:"camera_z"`
}

// RecordRun stores a run and its positions in a single transaction.
// If run.RunID is empty a new UUID is assigned. Positions are stored in
// slice order; each Seq is assigned from the slice index.
func (db *DB) RecordRun(run *Run, positions []Position) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = db.clock.Now()
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin record run tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (
			run_id, created_at, dataset, source_csv,
			frames_total, frames_used, frames_skipped,
			patch_radius, top_bias, reference_theta_rad
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.CreatedAt.Unix(),
		run.Dataset,
		run.SourceCSV,
		run.FramesTotal,
		run.FramesUsed,
		run.FramesSkipped,
		run.PatchRadius,
		run.TopBias,
		run.ReferenceTheta,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	for i, pos := range positions {
		_, err = tx.Exec(
			`INSERT INTO positions (
				run_id, seq, frame_id, forward_m, lateral_m,
				camera_x, camera_y, camera_z
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID,
			i,
			pos.FrameID,
			pos.Forward,
			pos.Lateral,
			pos.CameraX,
			pos.CameraY,
			pos.CameraZ,
		)
		if err != nil {
			return fmt.Errorf("failed to record position %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record run tx: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID.
func (db *DB) GetRun(runID string) (*Run, error) {
	query := `
		SELECT
			run_id, created_at, dataset, source_csv,
			frames_total, frames_used, frames_skipped,
			patch_radius, top_bias, reference_theta_rad
		FROM runs
		WHERE run_id = ?
	`

	var run Run
	var createdAtUnix int64

	err := db.DB.QueryRow(query, runID).Scan(
		&run.RunID,
		&createdAtUnix,
		&run.Dataset,
		&run.SourceCSV,
		&run.FramesTotal,
		&run.FramesUsed,
		&run.FramesSkipped,
		&run.PatchRadius,
		&run.TopBias,
		&run.ReferenceTheta,
	)

	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.CreatedAt = time.Unix(createdAtUnix, 0)
	return &run, nil
}

// LatestRun retrieves the most recently recorded run.
func (db *DB) LatestRun() (*Run, error) {
	query := `
		SELECT
			run_id, created_at, dataset, source_csv,
			frames_total, frames_used, frames_skipped,
			patch_radius, top_bias, reference_theta_rad
		FROM runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`

	var run Run
	var createdAtUnix int64

	err := db.DB.QueryRow(query).Scan(
		&run.RunID,
		&createdAtUnix,
		&run.Dataset,
		&run.SourceCSV,
		&run.FramesTotal,
		&run.FramesUsed,
		&run.FramesSkipped,
		&run.PatchRadius,
		&run.TopBias,
		&run.ReferenceTheta,
	)

	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	run.CreatedAt = time.Unix(createdAtUnix, 0)
	return &run, nil
}

// ListRuns retrieves runs ordered newest first. A limit <= 0 defaults to 50.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT
			run_id, created_at, dataset, source_csv,
			frames_total, frames_used, frames_skipped,
			patch_radius, top_bias, reference_theta_rad
		FROM runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := db.DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var createdAtUnix int64

		if err := rows.Scan(
			&run.RunID,
			&createdAtUnix,
			&run.Dataset,
			&run.SourceCSV,
			&run.FramesTotal,
			&run.FramesUsed,
			&run.FramesSkipped,
			&run.PatchRadius,
			&run.TopBias,
			&run.ReferenceTheta,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run.CreatedAt = time.Unix(createdAtUnix, 0)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// Positions retrieves the positions of a run in sequence order.
// An unknown run ID yields an empty slice, not an error.
func (db *DB) Positions(runID string) ([]Position, error) {
	query := `
		SELECT seq, frame_id, forward_m, lateral_m, camera_x, camera_y, camera_z
		FROM positions
		WHERE run_id = ?
		ORDER BY seq ASC
	`

	rows, err := db.DB.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		var pos Position
		if err := rows.Scan(
			&pos.Seq,
			&pos.FrameID,
			&pos.Forward,
			&pos.Lateral,
			&pos.CameraX,
			&pos.CameraY,
			&pos.CameraZ,
		); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return positions, nil
}
