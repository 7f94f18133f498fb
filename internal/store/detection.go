package store

import (
	"database/sql"
	"errors"
	"image"
	"time"

	"github.com/ayusman/doorcam/internal/event"
)

// DetectionRepository stores emitted detection events.
type DetectionRepository struct {
	db *sql.DB
}

// Detections returns the detection repository for this store.
func (s *Store) Detections() *DetectionRepository {
	return &DetectionRepository{db: s.db}
}

const detectionColumns = `id, ts_ms, classification, confidence, box_x1, box_y1, box_x2, box_y2,
	image_path, person_name, camera_index, face_distance, notified`

// Create inserts a detection.
func (r *DetectionRepository) Create(d event.Detection) error {
	var name sql.NullString
	if d.PersonName != "" {
		name = sql.NullString{String: d.PersonName, Valid: true}
	}

	_, err := r.db.Exec(
		`INSERT INTO detections (`+detectionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Timestamp.UnixMilli(), string(d.Classification), d.Confidence,
		d.Box.Min.X, d.Box.Min.Y, d.Box.Max.X, d.Box.Max.Y,
		d.ImagePath, name, d.CameraIndex, d.FaceDistance, d.Notified,
	)
	return err
}

// MarkNotified records that the notification for id was delivered.
func (r *DetectionRepository) MarkNotified(id string) error {
	result, err := r.db.Exec(`UPDATE detections SET notified = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// GetByID retrieves a detection by its ID.
func (r *DetectionRepository) GetByID(id string) (*event.Detection, error) {
	row := r.db.QueryRow(`SELECT `+detectionColumns+` FROM detections WHERE id = ?`, id)

	d, err := scanDetection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// List returns up to limit detections, newest first. limit <= 0 means 50.
func (r *DetectionRepository) List(limit int) ([]*event.Detection, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(
		`SELECT `+detectionColumns+` FROM detections ORDER BY ts_ms DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*event.Detection
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// CountSince returns how many detections happened at or after t.
func (r *DetectionRepository) CountSince(t time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM detections WHERE ts_ms >= ?`, t.UnixMilli()).Scan(&n)
	return n, err
}

// Latest returns the newest detection.
func (r *DetectionRepository) Latest() (*event.Detection, error) {
	list, err := r.List(1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDetection(s scanner) (*event.Detection, error) {
	var (
		d              event.Detection
		ts             int64
		class          string
		x1, y1, x2, y2 int
		name           sql.NullString
	)

	err := s.Scan(&d.ID, &ts, &class, &d.Confidence, &x1, &y1, &x2, &y2,
		&d.ImagePath, &name, &d.CameraIndex, &d.FaceDistance, &d.Notified)
	if err != nil {
		return nil, err
	}

	d.Timestamp = time.UnixMilli(ts)
	d.Classification = event.Classification(class)
	d.Box = image.Rect(x1, y1, x2, y2)
	d.PersonName = name.String
	return &d, nil
}
