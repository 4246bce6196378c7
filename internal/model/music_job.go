package model

import "time"

// MusicJob is the persisted record of one acquisition-and-tagging request.
type MusicJob struct {
	ID               string     `json:"id"`
	UserID           string     `json:"userId"`
	OriginalFilename *string    `json:"originalFilename,omitempty"`
	FilenameURL      *string    `json:"filenameUrl,omitempty"`
	VideoURL         *string    `json:"videoUrl,omitempty"`
	Title            string     `json:"title"`
	Artist           string     `json:"artist"`
	Album            string     `json:"album"`
	Grouping         *string    `json:"grouping,omitempty"`
	ArtworkURL       *string    `json:"artworkUrl,omitempty"`
	ArtworkFilename  *string    `json:"artworkFilename,omitempty"`
	DownloadFilename *string    `json:"downloadFilename,omitempty"`
	DownloadURL      *string    `json:"downloadUrl,omitempty"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	Failed           bool       `json:"failed"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	DeletedAt        *time.Time `json:"deletedAt,omitempty"`
}

// Status derives the lifecycle state from the record.
func (j *MusicJob) Status() JobStatus {
	switch {
	case j.Failed:
		return JobStatusFailed
	case j.CompletedAt != nil:
		return JobStatusCompleted
	case j.StartedAt != nil:
		return JobStatusStarted
	default:
		return JobStatusPending
	}
}

// Deleted reports whether the job has been cleaned up.
func (j *MusicJob) Deleted() bool {
	return j.DeletedAt != nil
}

// MusicJobPayload is the asynq task payload for music job kinds.
type MusicJobPayload struct {
	JobID string `json:"jobId"`
}

// MusicJobResponse is the HTTP view of a job.
type MusicJobResponse struct {
	*MusicJob
	Status JobStatus `json:"status"`
}

func NewMusicJobResponse(job *MusicJob) MusicJobResponse {
	return MusicJobResponse{MusicJob: job, Status: job.Status()}
}

// CreateMusicJobRequest holds the form fields of a job submission. The
// uploaded file, if any, travels separately as multipart data.
type CreateMusicJobRequest struct {
	VideoURL   *string `form:"videoUrl" json:"videoUrl" validate:"omitempty,url"`
	ArtworkURL *string `form:"artworkUrl" json:"artworkUrl"`
	Title      string  `form:"title" json:"title" validate:"required,max=255"`
	Artist     string  `form:"artist" json:"artist" validate:"required,max=255"`
	Album      string  `form:"album" json:"album" validate:"required,max=255"`
	Grouping   *string `form:"grouping" json:"grouping" validate:"omitempty,max=255"`
}

// ArtworkLookupResponse answers an artwork URL resolution.
type ArtworkLookupResponse struct {
	ResolvedArtworkURL string `json:"resolvedArtworkUrl"`
}

// GroupingResponse answers a grouping lookup for a video URL.
type GroupingResponse struct {
	Grouping string `json:"grouping"`
}

// TagsResponse is the tag preview of an uploaded file. Absent tags are null.
type TagsResponse struct {
	Title      *string `json:"title"`
	Artist     *string `json:"artist"`
	Album      *string `json:"album"`
	Grouping   *string `json:"grouping"`
	ArtworkURL *string `json:"artworkUrl"`
}
