// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package history records patch runs in a local SQLite database so a build
// pipeline can tell which module hash produced which patched output.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dotandev/watpatch/internal/errors"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Run is one recorded invocation.
type Run struct {
	ID             int64          `json:"id"`
	Input          string         `json:"input"`
	Output         string         `json:"output"`
	Profile        string         `json:"profile"`
	Status         string         `json:"status"`
	ErrorMsg       string         `json:"error_msg,omitempty"`
	TypeID         string         `json:"type_id"`
	TableIndex     int            `json:"table_index"`
	Replacements   map[string]int `json:"replacements"`
	LinesDiscarded int            `json:"lines_discarded"`
	InputSHA256    string         `json:"input_sha256"`
	OutputSHA256   string         `json:"output_sha256"`
	DryRun         bool           `json:"dry_run"`
	Duration       time.Duration  `json:"duration"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Store handles database operations
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.WrapHistory("failed to create data dir", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WrapHistory("failed to open db", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		input TEXT NOT NULL,
		output TEXT,
		profile TEXT,
		status TEXT NOT NULL,
		error_msg TEXT,
		type_id TEXT,
		table_index INTEGER,
		replacements TEXT,
		lines_discarded INTEGER,
		input_sha256 TEXT,
		output_sha256 TEXT,
		dry_run INTEGER,
		duration_ns INTEGER,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_runs_input_sha ON runs(input_sha256);
	`
	if _, err := db.Exec(query); err != nil {
		return errors.WrapHistory("failed to init schema", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists run and sets its ID.
func (s *Store) Save(ctx context.Context, run *Run) error {
	replacements, err := json.Marshal(run.Replacements)
	if err != nil {
		return errors.WrapHistory("failed to encode replacements", err)
	}
	if run.Timestamp.IsZero() {
		run.Timestamp = time.Now().UTC()
	}

	query := `
	INSERT INTO runs (input, output, profile, status, error_msg, type_id, table_index,
		replacements, lines_discarded, input_sha256, output_sha256, dry_run, duration_ns, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.ExecContext(ctx, query,
		run.Input, run.Output, run.Profile, run.Status, run.ErrorMsg, run.TypeID, run.TableIndex,
		string(replacements), run.LinesDiscarded, run.InputSHA256, run.OutputSHA256, run.DryRun,
		int64(run.Duration), run.Timestamp)
	if err != nil {
		return errors.WrapHistory("failed to insert run", err)
	}
	if run.ID, err = res.LastInsertId(); err != nil {
		return errors.WrapHistory("failed to read run id", err)
	}
	return nil
}

// ListParams defines the criteria for listing runs
type ListParams struct {
	InputSHA256 string
	Status      string
	Limit       int
}

// List returns runs newest first.
func (s *Store) List(ctx context.Context, params ListParams) ([]Run, error) {
	query := `SELECT id, input, output, profile, status, error_msg, type_id, table_index,
		replacements, lines_discarded, input_sha256, output_sha256, dry_run, duration_ns, timestamp
		FROM runs WHERE 1=1`
	args := []interface{}{}

	if params.InputSHA256 != "" {
		query += " AND input_sha256 = ?"
		args = append(args, params.InputSHA256)
	}
	if params.Status != "" {
		query += " AND status = ?"
		args = append(args, params.Status)
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if params.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, params.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapHistory("query failed", err)
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		var (
			run          Run
			replacements string
			durationNS   int64
		)
		if err := rows.Scan(&run.ID, &run.Input, &run.Output, &run.Profile, &run.Status, &run.ErrorMsg,
			&run.TypeID, &run.TableIndex, &replacements, &run.LinesDiscarded, &run.InputSHA256,
			&run.OutputSHA256, &run.DryRun, &durationNS, &run.Timestamp); err != nil {
			return nil, errors.WrapHistory("scan failed", err)
		}
		run.Duration = time.Duration(durationNS)
		_ = json.Unmarshal([]byte(replacements), &run.Replacements)
		results = append(results, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapHistory("iteration failed", err)
	}
	return results, nil
}
