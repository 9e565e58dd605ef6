package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/slr.track/internal/observation"
)

var _ observation.Store = (*DB)(nil)

// CreateObservationSet inserts s and its points in one transaction.
func (db *DB) CreateObservationSet(s observation.Set) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO observation_sets (set_id, label, color, visible, created_at_ns) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.Label, s.Color, s.Visible, s.CreatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("insert observation set: %w", err)
	}
	if err := insertPoints(tx, s.ID, s.Points); err != nil {
		return err
	}
	return tx.Commit()
}

func insertPoints(tx *sql.Tx, id string, points []r3.Vec) error {
	stmt, err := tx.Prepare(`INSERT INTO observation_points (set_id, seq, x, y, z) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare point insert: %w", err)
	}
	defer stmt.Close()
	for i, p := range points {
		if _, err := stmt.Exec(id, i, p.X, p.Y, p.Z); err != nil {
			return fmt.Errorf("insert point %d: %w", i, err)
		}
	}
	return nil
}

// ObservationSets returns every set with its points, oldest first.
func (db *DB) ObservationSets() ([]observation.Set, error) {
	rows, err := db.Query(`SELECT set_id, label, color, visible, created_at_ns
		FROM observation_sets ORDER BY created_at_ns, rowid`)
	if err != nil {
		return nil, fmt.Errorf("query observation sets: %w", err)
	}
	defer rows.Close()

	var sets []observation.Set
	for rows.Next() {
		var s observation.Set
		var createdNs int64
		if err := rows.Scan(&s.ID, &s.Label, &s.Color, &s.Visible, &createdNs); err != nil {
			return nil, fmt.Errorf("scan observation set: %w", err)
		}
		s.CreatedAt = time.Unix(0, createdNs).UTC()
		sets = append(sets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range sets {
		if sets[i].Points, err = db.ObservationPoints(sets[i].ID); err != nil {
			return nil, err
		}
	}
	return sets, nil
}

// ObservationPoints returns the points of one set in order.
func (db *DB) ObservationPoints(id string) ([]r3.Vec, error) {
	rows, err := db.Query(`SELECT x, y, z FROM observation_points WHERE set_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query observation points: %w", err)
	}
	defer rows.Close()

	var points []r3.Vec
	for rows.Next() {
		var p r3.Vec
		if err := rows.Scan(&p.X, &p.Y, &p.Z); err != nil {
			return nil, fmt.Errorf("scan observation point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// UpdateObservationSet stores the visibility and override colour of a set.
func (db *DB) UpdateObservationSet(id string, visible bool, color string) error {
	res, err := db.Exec(`UPDATE observation_sets SET visible = ?, color = ? WHERE set_id = ?`, visible, color, id)
	if err != nil {
		return fmt.Errorf("update observation set: %w", err)
	}
	return requireRow(res, id)
}

// ClearObservationSet deletes the points of a set but keeps the set.
func (db *DB) ClearObservationSet(id string) error {
	if err := db.exists(id); err != nil {
		return err
	}
	if _, err := db.Exec(`DELETE FROM observation_points WHERE set_id = ?`, id); err != nil {
		return fmt.Errorf("clear observation set: %w", err)
	}
	return nil
}

// DeleteObservationSet removes a set and its points.
func (db *DB) DeleteObservationSet(id string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM observation_points WHERE set_id = ?`, id); err != nil {
		return fmt.Errorf("delete observation points: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM observation_sets WHERE set_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete observation set: %w", err)
	}
	if err := requireRow(res, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (db *DB) exists(id string) error {
	var one int
	err := db.QueryRow(`SELECT 1 FROM observation_sets WHERE set_id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", observation.ErrSetNotFound, id)
	}
	return err
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", observation.ErrSetNotFound, id)
	}
	return nil
}
