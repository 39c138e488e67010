package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/Fato07/runway-music-video-generator/pkg/errors"
)

// Repository provides database operations for generations
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository
func NewRepository(dbPath string) (*Repository, error) {
	log.Info().Str("db_path", dbPath).Msg("database_init")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		log.Error().Err(err).Str("db_path", dbPath).Msg("database_open_failed")
		return nil, errors.Wrap(err, "failed to open database")
	}
	// Concurrent runs share one writer.
	db.SetMaxOpenConns(1)

	log.Info().Str("db_path", dbPath).Msg("database_create_schema")
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		log.Error().Err(err).Str("db_path", dbPath).Msg("database_schema_failed")
		return nil, errors.Wrap(err, "failed to create schema")
	}

	log.Info().Str("db_path", dbPath).Msg("database_ready")
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

const selectColumns = `
	SELECT id, analysis_id, source_image, status, job_id, prompt, duration, poll_attempts,
	       output_uri, local_path, s3_key, failed_phase, error_message, created_at, updated_at
	FROM generations`

type scanner interface {
	Scan(dest ...any) error
}

func scanGeneration(s scanner) (*Generation, error) {
	var g Generation
	var jobID, prompt, outputURI, localPath, s3Key, failedPhase, errorMessage sql.NullString
	var duration sql.NullInt64

	err := s.Scan(
		&g.ID, &g.AnalysisID, &g.SourceImage, &g.Status, &jobID, &prompt, &duration, &g.PollAttempts,
		&outputURI, &localPath, &s3Key, &failedPhase, &errorMessage, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}

	g.JobID = jobID.String
	g.Prompt = prompt.String
	g.Duration = int(duration.Int64)
	g.OutputURI = outputURI.String
	g.LocalPath = localPath.String
	g.S3Key = s3Key.String
	g.FailedPhase = failedPhase.String
	g.ErrorMessage = errorMessage.String
	return &g, nil
}

// Create inserts a new generation record
func (r *Repository) Create(g *Generation) error {
	if g.Status == "" {
		g.Status = StatusPending
	}
	log.Info().Str("analysis_id", g.AnalysisID).Str("status", g.Status).Msg("database_create_generation")

	query := `
		INSERT INTO generations (analysis_id, source_image, status, job_id, prompt, duration,
		                         poll_attempts, output_uri, local_path, s3_key, failed_phase, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		g.AnalysisID, g.SourceImage, g.Status, g.JobID, g.Prompt, g.Duration,
		g.PollAttempts, g.OutputURI, g.LocalPath, g.S3Key, g.FailedPhase, g.ErrorMessage)
	if err != nil {
		log.Error().Err(err).Str("analysis_id", g.AnalysisID).Msg("database_insert_failed")
		return errors.Wrap(err, "failed to insert generation")
	}

	id, err := result.LastInsertId()
	if err != nil {
		log.Error().Err(err).Str("analysis_id", g.AnalysisID).Msg("database_last_insert_id_failed")
		return errors.Wrap(err, "failed to get last insert id")
	}
	g.ID = id

	log.Info().Str("analysis_id", g.AnalysisID).Int64("generation_id", g.ID).Str("status", g.Status).Msg("database_generation_created")
	return nil
}

// GetByAnalysisID retrieves a generation by analysis ID. It returns nil,
// nil when no row matches.
func (r *Repository) GetByAnalysisID(analysisID string) (*Generation, error) {
	log.Debug().Str("analysis_id", analysisID).Msg("database_query_generation")

	g, err := scanGeneration(r.db.QueryRow(selectColumns+` WHERE analysis_id = ?`, analysisID))
	if err == sql.ErrNoRows {
		log.Info().Str("analysis_id", analysisID).Msg("database_generation_not_found")
		return nil, nil // Not found
	}
	if err != nil {
		log.Error().Err(err).Str("analysis_id", analysisID).Msg("database_query_failed")
		return nil, errors.Wrap(err, "failed to query generation")
	}
	return g, nil
}

// Update updates an existing generation record
func (r *Repository) Update(g *Generation) error {
	log.Info().Int64("generation_id", g.ID).Str("analysis_id", g.AnalysisID).Str("status", g.Status).Msg("database_update_generation")

	query := `
		UPDATE generations
		SET status = ?, job_id = ?, prompt = ?, duration = ?, poll_attempts = ?,
		    output_uri = ?, local_path = ?, s3_key = ?, failed_phase = ?, error_message = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.db.Exec(query,
		g.Status, g.JobID, g.Prompt, g.Duration, g.PollAttempts,
		g.OutputURI, g.LocalPath, g.S3Key, g.FailedPhase, g.ErrorMessage, g.ID)
	if err != nil {
		log.Error().Err(err).Int64("generation_id", g.ID).Msg("database_update_failed")
		return errors.Wrap(err, "failed to update generation")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		log.Error().Err(err).Int64("generation_id", g.ID).Msg("database_rows_affected_failed")
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		log.Error().Int64("generation_id", g.ID).Msg("database_generation_not_found_for_update")
		return fmt.Errorf("generation not found: id=%d", g.ID)
	}

	log.Info().Int64("generation_id", g.ID).Str("status", g.Status).Msg("database_generation_updated")
	return nil
}

// UpdateStatus updates only the status and error fields
func (r *Repository) UpdateStatus(id int64, status, errorMessage string) error {
	log.Info().Int64("generation_id", id).Str("status", status).Msg("database_update_status")

	query := `UPDATE generations SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	_, err := r.db.Exec(query, status, errorMessage, id)
	if err != nil {
		log.Error().Err(err).Int64("generation_id", id).Str("status", status).Msg("database_status_update_failed")
		return errors.Wrap(err, "failed to update status")
	}

	log.Info().Int64("generation_id", id).Str("status", status).Msg("database_status_updated")
	return nil
}

// List retrieves generations, newest first. With statuses set, only rows in
// one of them are returned.
func (r *Repository) List(statuses ...string) ([]*Generation, error) {
	log.Debug().Strs("statuses", statuses).Msg("database_list_generations")

	query := selectColumns
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (?` + strings.Repeat(", ?", len(statuses)-1) + `)`
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		log.Error().Err(err).Msg("database_list_query_failed")
		return nil, errors.Wrap(err, "failed to list generations")
	}
	defer rows.Close()

	var generations []*Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			log.Error().Err(err).Msg("database_scan_row_failed")
			return nil, errors.Wrap(err, "failed to scan row")
		}
		generations = append(generations, g)
	}

	if err := rows.Err(); err != nil {
		log.Error().Err(err).Msg("database_rows_error")
		return nil, errors.Wrap(err, "rows error")
	}

	log.Debug().Int("generation_count", len(generations)).Msg("database_list_complete")
	return generations, nil
}

// Delete deletes a generation by ID
func (r *Repository) Delete(id int64) error {
	log.Info().Int64("generation_id", id).Msg("database_delete_generation")

	_, err := r.db.Exec(`DELETE FROM generations WHERE id = ?`, id)
	if err != nil {
		log.Error().Err(err).Int64("generation_id", id).Msg("database_delete_failed")
		return errors.Wrap(err, "failed to delete generation")
	}

	log.Info().Int64("generation_id", id).Msg("database_generation_deleted")
	return nil
}

// MarkCleaned flags the given generations as cleaned in one transaction and
// clears their local paths. Rows already cleaned are left untouched.
func (r *Repository) MarkCleaned(ctx context.Context, ids []int64) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed_to_begin_transaction")
		return 0, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	query := `UPDATE generations SET status = ?, local_path = '', updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status != ?`
	var total int64
	for _, id := range ids {
		result, err := tx.ExecContext(ctx, query, StatusCleaned, id, StatusCleaned)
		if err != nil {
			log.Error().Err(err).Int64("generation_id", id).Msg("failed_to_mark_cleaned")
			return 0, errors.Wrap(err, "failed to mark generation cleaned")
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, errors.Wrap(err, "failed to get rows affected")
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		log.Error().Err(err).Msg("failed_to_commit_transaction")
		return 0, errors.Wrap(err, "failed to commit transaction")
	}

	log.Info().Int64("cleaned", total).Int("requested", len(ids)).Msg("generations_marked_cleaned")
	return total, nil
}
