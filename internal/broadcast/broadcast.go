// Package broadcast announces job lifecycle changes on a Redis pub/sub
// channel.
package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/dripdrop/musicjobs/internal/logging"
	"github.com/dripdrop/musicjobs/internal/model"
)

// ChannelJobUpdate carries model.JobUpdate messages.
const ChannelJobUpdate = "MUSIC_JOB_UPDATE"

// Publisher is satisfied by *redis.Client.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type Broadcaster struct {
	publisher Publisher
	channel   string
	logger    *slog.Logger
}

func New(publisher Publisher, channel string, logger *slog.Logger) *Broadcaster {
	if channel == "" {
		channel = ChannelJobUpdate
	}
	return &Broadcaster{
		publisher: publisher,
		channel:   channel,
		logger:    logging.Or(logger).With(logging.FieldComponent, "broadcast"),
	}
}

// Channel returns the channel updates are published on.
func (b *Broadcaster) Channel() string {
	return b.channel
}

// Announce publishes {id, status}. Delivery is best effort; errors are logged.
func (b *Broadcaster) Announce(ctx context.Context, jobID string, status model.JobStatus) {
	data, err := json.Marshal(model.JobUpdate{ID: jobID, Status: status})
	if err != nil {
		b.logger.Error("encode job update", logging.FieldJobID, jobID, "error", err)
		return
	}
	if err := b.publisher.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Warn("publish job update failed", logging.FieldJobID, jobID, "status", status, "error", err)
	}
}
