package handler

import (
	"context"
	"errors"
	"io"
	"mime/multipart"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/dripdrop/musicjobs/internal/middleware"
	"github.com/dripdrop/musicjobs/internal/model"
	"github.com/dripdrop/musicjobs/internal/service"
	"github.com/dripdrop/musicjobs/pkg/response"
)

const maxUploadSize = 50 * 1024 * 1024 // 50MB

// MusicJobs is the service behind the music routes.
type MusicJobs interface {
	CreateJob(ctx context.Context, userID string, req *model.CreateMusicJobRequest, file *service.Upload) (*model.MusicJob, error)
	GetJob(ctx context.Context, userID, jobID string) (*model.MusicJob, error)
	ListJobs(ctx context.Context, userID string) ([]*model.MusicJob, error)
	DeleteJob(ctx context.Context, userID, jobID string) error
	ResolveArtwork(ctx context.Context, artworkURL string) (string, error)
	Grouping(ctx context.Context, videoURL string) (string, error)
	ReadTags(file *service.Upload) *model.TagsResponse
}

type MusicHandler struct {
	service   MusicJobs
	validator *validator.Validate
}

func NewMusicHandler(svc MusicJobs, v *validator.Validate) *MusicHandler {
	return &MusicHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/music/jobs
func (h *MusicHandler) Create(c *fiber.Ctx) error {
	var req model.CreateMusicJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	var upload *service.Upload
	if fh, err := c.FormFile("file"); err == nil {
		if upload, err = readUpload(fh); err != nil {
			return response.ValidationError(c, err.Error(), nil)
		}
	}

	job, err := h.service.CreateJob(c.UserContext(), middleware.GetUserID(c), &req, upload)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Accepted(c, model.NewMusicJobResponse(job))
}

// List handles GET /api/music/jobs
func (h *MusicHandler) List(c *fiber.Ctx) error {
	jobs, err := h.service.ListJobs(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return response.FromError(c, err)
	}

	out := make([]model.MusicJobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, model.NewMusicJobResponse(job))
	}
	return response.OK(c, fiber.Map{"jobs": out})
}

// Get handles GET /api/music/jobs/:jobId
func (h *MusicHandler) Get(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.GetJob(c.UserContext(), middleware.GetUserID(c), jobID)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, model.NewMusicJobResponse(job))
}

// Delete handles DELETE /api/music/jobs/:jobId
func (h *MusicHandler) Delete(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	if err := h.service.DeleteJob(c.UserContext(), middleware.GetUserID(c), jobID); err != nil {
		return response.FromError(c, err)
	}

	return response.Accepted(c, fiber.Map{"id": jobID})
}

// Artwork handles GET /api/music/artwork?artwork_url=
func (h *MusicHandler) Artwork(c *fiber.Ctx) error {
	resolved, err := h.service.ResolveArtwork(c.UserContext(), c.Query("artwork_url"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, model.ArtworkLookupResponse{ResolvedArtworkURL: resolved})
}

// Grouping handles GET /api/music/grouping?video_url=
func (h *MusicHandler) Grouping(c *fiber.Ctx) error {
	grouping, err := h.service.Grouping(c.UserContext(), c.Query("video_url"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, model.GroupingResponse{Grouping: grouping})
}

// Tags handles POST /api/music/tags
func (h *MusicHandler) Tags(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	upload, err := readUpload(fh)
	if err != nil {
		return response.ValidationError(c, err.Error(), nil)
	}

	return response.OK(c, h.service.ReadTags(upload))
}

var (
	errFileTooLarge   = errors.New("File size exceeds 50MB limit")
	errFileUnreadable = errors.New("File could not be read")
)

func readUpload(fh *multipart.FileHeader) (*service.Upload, error) {
	if fh.Size > maxUploadSize {
		return nil, errFileTooLarge
	}

	f, err := fh.Open()
	if err != nil {
		return nil, errFileUnreadable
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxUploadSize+1))
	if err != nil {
		return nil, errFileUnreadable
	}
	if len(content) > maxUploadSize {
		return nil, errFileTooLarge
	}
	return &service.Upload{Filename: fh.Filename, Content: content}, nil
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		fields := make(map[string]string)
		for _, e := range validationErrors {
			fields[e.Field()] = e.Tag()
		}
		return fields
	}
	return nil
}
