// Package task persists the history of download attempts.
package task

import (
	"database/sql"
	"time"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) (*Repository, error) {
	r := &Repository{db: db}
	if err := r.initTable(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) initTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS downloads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token TEXT NOT NULL,
		url TEXT NOT NULL,
		filename TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		created_time DATETIME NOT NULL,
		finished_time DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_downloads_token ON downloads(token);
	`
	_, err := r.db.Exec(query)
	return err
}

// Create records the start of a transfer and returns the row id.
func (r *Repository) Create(token, url, filename string) (int64, error) {
	query := `INSERT INTO downloads (token, url, filename, status, created_time) VALUES (?, ?, ?, 'downloading', ?)`
	res, err := r.db.Exec(query, token, url, filename, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Finish marks a transfer done or failed.
func (r *Repository) Finish(id int64, status string, size int64, message string) error {
	query := `UPDATE downloads SET status = ?, size = ?, message = ?, finished_time = ? WHERE id = ?`
	_, err := r.db.Exec(query, status, size, message, time.Now().UTC(), id)
	return err
}

// List returns the most recent attempts, newest first.
func (r *Repository) List(limit int) ([]Record, error) {
	query := `SELECT id, token, url, filename, size, status, message, created_time, finished_time
		FROM downloads ORDER BY created_time DESC, id DESC LIMIT ?`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var finished sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Token, &rec.URL, &rec.Filename, &rec.Size,
			&rec.Status, &rec.Message, &rec.CreatedTime, &finished); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			rec.FinishedTime = &t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Get returns one attempt by row id.
func (r *Repository) Get(id int64) (*Record, error) {
	query := `SELECT id, token, url, filename, size, status, message, created_time, finished_time
		FROM downloads WHERE id = ?`
	var rec Record
	var finished sql.NullTime
	err := r.db.QueryRow(query, id).Scan(&rec.ID, &rec.Token, &rec.URL, &rec.Filename,
		&rec.Size, &rec.Status, &rec.Message, &rec.CreatedTime, &finished)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		rec.FinishedTime = &t
	}
	return &rec, nil
}
