package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/multierr"

	"github.com/dripdrop/musicjobs/internal/artwork"
	"github.com/dripdrop/musicjobs/internal/client"
	"github.com/dripdrop/musicjobs/internal/config"
	"github.com/dripdrop/musicjobs/internal/failure"
	"github.com/dripdrop/musicjobs/internal/logging"
	"github.com/dripdrop/musicjobs/internal/model"
	"github.com/dripdrop/musicjobs/internal/publish"
	"github.com/dripdrop/musicjobs/internal/store"
	"github.com/dripdrop/musicjobs/internal/tags"
)

// JobEnqueuer submits music tasks.
type JobEnqueuer interface {
	EnqueueProcess(ctx context.Context, jobID string) (*asynq.TaskInfo, error)
	EnqueueCleanup(ctx context.Context, jobID string) (*asynq.TaskInfo, error)
}

// ArtworkLookup resolves artwork page links to image links.
type ArtworkLookup interface {
	ResolveURL(ctx context.Context, spec string) (string, error)
}

// GroupingLookup finds the uploader of a video.
type GroupingLookup interface {
	Uploader(ctx context.Context, url string) (string, error)
}

// Announcer broadcasts lifecycle changes.
type Announcer interface {
	Announce(ctx context.Context, jobID string, status model.JobStatus)
}

// Upload is a file submitted with a job.
type Upload struct {
	Filename string
	Content  []byte
}

// MusicService handles music job management
type MusicService struct {
	store     store.JobStore
	storage   client.StorageClient
	enqueuer  JobEnqueuer
	artwork   ArtworkLookup
	grouping  GroupingLookup
	announcer Announcer
	folders   config.S3Config
	tempDir   string
	now       func() time.Time
	logger    *slog.Logger
}

func NewMusicService(
	jobStore store.JobStore,
	storage client.StorageClient,
	enqueuer JobEnqueuer,
	artworkLookup ArtworkLookup,
	groupingLookup GroupingLookup,
	announcer Announcer,
	folders config.S3Config,
	tempDir string,
	logger *slog.Logger,
) *MusicService {
	return &MusicService{
		store:     jobStore,
		storage:   storage,
		enqueuer:  enqueuer,
		artwork:   artworkLookup,
		grouping:  groupingLookup,
		announcer: announcer,
		folders:   folders,
		tempDir:   tempDir,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logging.Or(logger).With(logging.FieldComponent, "music_service"),
	}
}

func validationError(message string) error {
	return failure.Wrap(failure.ErrValidation, "", "", message, nil)
}

// CreateJob records a new job for userID, stores its uploaded inputs and
// queues it for processing.
func (s *MusicService) CreateJob(ctx context.Context, userID string, req *model.CreateMusicJobRequest, file *Upload) (*model.MusicJob, error) {
	hasVideo := req.VideoURL != nil && strings.TrimSpace(*req.VideoURL) != ""
	hasFile := file != nil && len(file.Content) > 0
	switch {
	case hasVideo && hasFile:
		return nil, validationError("'file' and 'videoUrl' cannot both be defined")
	case !hasVideo && !hasFile:
		return nil, validationError("'file' or 'videoUrl' must be defined")
	}

	var fileType *mimetype.MIME
	if hasFile {
		fileType = mimetype.Detect(file.Content)
		if !isAudio(fileType) {
			return nil, validationError("File is incorrect format")
		}
	}

	now := s.now()
	job := &model.MusicJob{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     req.Title,
		Artist:    req.Artist,
		Album:     req.Album,
		Grouping:  emptyToNil(req.Grouping),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if hasVideo {
		videoURL := strings.TrimSpace(*req.VideoURL)
		job.VideoURL = &videoURL
	}

	if hasFile {
		ext := filepath.Ext(file.Filename)
		if ext == "" {
			ext = fileType.Extension()
		}
		key := publish.OriginalKey(s.folders.OriginalsFolder, job.ID, ext)
		url, err := s.storage.Upload(ctx, key, bytes.NewReader(file.Content), fileType.String())
		if err != nil {
			return nil, failure.Wrap(failure.ErrStorage, "create", "upload original", "", err)
		}
		job.OriginalFilename = &key
		job.FilenameURL = &url
	}

	if spec := emptyToNil(req.ArtworkURL); spec != nil {
		if art, ok := artwork.DecodeDataURI(*spec); ok {
			key := publish.ArtworkKey(s.folders.ArtworkFolder, job.ID, art.Extension())
			url, err := s.storage.Upload(ctx, key, bytes.NewReader(art.Data), art.MimeType)
			if err != nil {
				return nil, failure.Wrap(failure.ErrStorage, "create", "upload artwork", "", err)
			}
			job.ArtworkFilename = &key
			job.ArtworkURL = &url
		} else {
			job.ArtworkURL = spec
		}
	}

	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	// announced before enqueueing so subscribers never see STARTED first
	s.announcer.Announce(ctx, job.ID, model.JobStatusPending)

	if _, err := s.enqueuer.EnqueueProcess(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.logger.Info("music job created", logging.FieldJobID, job.ID, "user_id", userID)
	return job, nil
}

// GetJob returns userID's job. Jobs of other users and deleted jobs are
// reported as not found.
func (s *MusicService) GetJob(ctx context.Context, userID, jobID string) (*model.MusicJob, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID || job.Deleted() {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, jobID)
	}
	return job, nil
}

// ListJobs returns userID's jobs, newest first.
func (s *MusicService) ListJobs(ctx context.Context, userID string) ([]*model.MusicJob, error) {
	return s.store.List(ctx, userID)
}

// DeleteJob queues cleanup of userID's job.
func (s *MusicService) DeleteJob(ctx context.Context, userID, jobID string) error {
	if _, err := s.GetJob(ctx, userID, jobID); err != nil {
		return err
	}
	_, err := s.enqueuer.EnqueueCleanup(ctx, jobID)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// Cleanup deletes the job's stored objects and soft-deletes the record.
// Objects that are already gone are not an error.
func (s *MusicService) Cleanup(ctx context.Context, jobID string) error {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Deleted() {
		return nil
	}

	var errs error
	for _, key := range []*string{job.ArtworkFilename, job.DownloadFilename, job.OriginalFilename} {
		if key == nil || *key == "" {
			continue
		}
		if err := s.storage.Delete(ctx, *key); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return failure.Wrap(failure.ErrStorage, "cleanup", "delete objects", jobID, errs)
	}

	now := s.now()
	job.DeletedAt = &now
	job.UpdatedAt = now
	if err := s.store.Update(ctx, job); err != nil {
		return fmt.Errorf("mark job deleted: %w", err)
	}
	s.logger.Info("music job cleaned up", logging.FieldJobID, jobID)
	return nil
}

// ResolveArtwork answers an artwork lookup.
func (s *MusicService) ResolveArtwork(ctx context.Context, artworkURL string) (string, error) {
	if strings.TrimSpace(artworkURL) == "" {
		return "", validationError("artwork_url is required")
	}
	resolved, err := s.artwork.ResolveURL(ctx, artworkURL)
	if err != nil {
		s.logger.Debug("artwork lookup failed", "artwork_url", artworkURL, "error", err)
		return "", validationError("Unable to get artwork.")
	}
	return resolved, nil
}

// Grouping answers a grouping lookup for a video.
func (s *MusicService) Grouping(ctx context.Context, videoURL string) (string, error) {
	if strings.TrimSpace(videoURL) == "" {
		return "", validationError("video_url is required")
	}
	uploader, err := s.grouping.Uploader(ctx, videoURL)
	if err != nil {
		s.logger.Warn("grouping lookup failed", "video_url", videoURL, "error", err)
		return "", validationError("Unable to get grouping.")
	}
	return uploader, nil
}

// ReadTags previews the tags of an uploaded file.
func (s *MusicService) ReadTags(file *Upload) *model.TagsResponse {
	t := tags.ReadBytes(file.Content, file.Filename, s.tempDir)
	return &model.TagsResponse{
		Title:      t.Title,
		Artist:     t.Artist,
		Album:      t.Album,
		Grouping:   t.Grouping,
		ArtworkURL: t.ArtworkURL,
	}
}

func isAudio(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") {
			return true
		}
	}
	return false
}

func emptyToNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
