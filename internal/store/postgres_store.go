package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dripdrop/musicjobs/internal/model"
)

const uniqueViolationCode = "23505"

// ErrDuplicate is returned when a job with the same id already exists.
var ErrDuplicate = errors.New("music job already exists")

// PostgresJobStore implements JobStore on the music_jobs table.
type PostgresJobStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ JobStore = (*PostgresJobStore)(nil)

// NewPostgresJobStore wraps an open database handle. The caller owns db.
func NewPostgresJobStore(db *sql.DB, logger *slog.Logger) *PostgresJobStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresJobStore{db: db, logger: logger.With(slog.String("component", "job_store"))}
}

const jobColumns = `id, user_id, original_filename, filename_url, video_url, title, artist, album,
	"grouping", artwork_url, artwork_filename, download_filename, download_url,
	started_at, completed_at, failed, created_at, updated_at, deleted_at`

func (s *PostgresJobStore) Create(ctx context.Context, job *model.MusicJob) error {
	query := `INSERT INTO music_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.UserID, job.OriginalFilename, job.FilenameURL, job.VideoURL,
		job.Title, job.Artist, job.Album, job.Grouping, job.ArtworkURL, job.ArtworkFilename,
		job.DownloadFilename, job.DownloadURL, job.StartedAt, job.CompletedAt, job.Failed,
		job.CreatedAt, job.UpdatedAt, job.DeletedAt,
	)
	if err != nil {
		s.logger.Error("failed to create music job", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		return mapError(err)
	}
	return nil
}

func (s *PostgresJobStore) Get(ctx context.Context, id string) (*model.MusicJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM music_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, mapError(err)
	}
	return job, nil
}

func (s *PostgresJobStore) Update(ctx context.Context, job *model.MusicJob) error {
	query := `UPDATE music_jobs SET
		original_filename = $2, filename_url = $3, video_url = $4, title = $5, artist = $6,
		album = $7, "grouping" = $8, artwork_url = $9, artwork_filename = $10,
		download_filename = $11, download_url = $12, started_at = $13, completed_at = $14,
		failed = $15, updated_at = $16, deleted_at = $17
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query,
		job.ID, job.OriginalFilename, job.FilenameURL, job.VideoURL, job.Title, job.Artist,
		job.Album, job.Grouping, job.ArtworkURL, job.ArtworkFilename,
		job.DownloadFilename, job.DownloadURL, job.StartedAt, job.CompletedAt,
		job.Failed, job.UpdatedAt, job.DeletedAt,
	)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, job.ID)
	}
	return nil
}

func (s *PostgresJobStore) List(ctx context.Context, userID string) ([]*model.MusicJob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM music_jobs
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var jobs []*model.MusicJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*model.MusicJob, error) {
	var job model.MusicJob
	err := row.Scan(
		&job.ID, &job.UserID, &job.OriginalFilename, &job.FilenameURL, &job.VideoURL,
		&job.Title, &job.Artist, &job.Album, &job.Grouping, &job.ArtworkURL, &job.ArtworkFilename,
		&job.DownloadFilename, &job.DownloadURL, &job.StartedAt, &job.CompletedAt, &job.Failed,
		&job.CreatedAt, &job.UpdatedAt, &job.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
