package db

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// PositionRecord is one raw position sample as received from a station.
type PositionRecord struct {
	StationID  string    `json:"station_id"`
	ObjectID   string    `json:"object_id"`
	Position   r3.Vec    `json:"position"`
	ReceivedAt time.Time `json:"received_at"`
}

// RecordPosition appends one sample to the position log.
func (db *DB) RecordPosition(rec PositionRecord) error {
	_, err := db.Exec(
		`INSERT INTO positions (station_id, object_id, x, y, z, received_at_ns) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.StationID, rec.ObjectID, rec.Position.X, rec.Position.Y, rec.Position.Z, rec.ReceivedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record position: %w", err)
	}
	return nil
}

// RecordPositions appends a batch of samples in one transaction.
func (db *DB) RecordPositions(recs []PositionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO positions (station_id, object_id, x, y, z, received_at_ns) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare position insert: %w", err)
	}
	defer stmt.Close()
	for _, rec := range recs {
		if _, err := stmt.Exec(rec.StationID, rec.ObjectID, rec.Position.X, rec.Position.Y, rec.Position.Z, rec.ReceivedAt.UnixNano()); err != nil {
			return fmt.Errorf("record position: %w", err)
		}
	}
	return tx.Commit()
}

// Positions returns the samples of one object received at or after since,
// oldest first. An empty object matches every object of the station and a
// zero since matches all time.
func (db *DB) Positions(station, object string, since time.Time) ([]PositionRecord, error) {
	sinceNs := int64(math.MinInt64)
	if !since.IsZero() {
		sinceNs = since.UnixNano()
	}
	rows, err := db.Query(`SELECT station_id, object_id, x, y, z, received_at_ns FROM positions
		WHERE station_id = ? AND (? = '' OR object_id = ?) AND received_at_ns >= ?
		ORDER BY received_at_ns, position_id`,
		station, object, object, sinceNs)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []PositionRecord
	for rows.Next() {
		var rec PositionRecord
		var ns int64
		if err := rows.Scan(&rec.StationID, &rec.ObjectID, &rec.Position.X, &rec.Position.Y, &rec.Position.Z, &ns); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		rec.ReceivedAt = time.Unix(0, ns).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
