package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dripdrop/musicjobs/internal/auth"
	"github.com/dripdrop/musicjobs/internal/config"
	"github.com/dripdrop/musicjobs/internal/logging"
	"github.com/dripdrop/musicjobs/internal/model"
	"github.com/dripdrop/musicjobs/internal/service"
	"github.com/dripdrop/musicjobs/internal/store"
	ws "github.com/dripdrop/musicjobs/internal/websocket"
)

type stubMusic struct{}

func (stubMusic) CreateJob(context.Context, string, *model.CreateMusicJobRequest, *service.Upload) (*model.MusicJob, error) {
	return &model.MusicJob{ID: "j1"}, nil
}

func (stubMusic) GetJob(_ context.Context, userID, jobID string) (*model.MusicJob, error) {
	if userID == "u1" && jobID == "j1" {
		return &model.MusicJob{ID: jobID, UserID: userID}, nil
	}
	return nil, store.ErrNotFound
}

func (stubMusic) ListJobs(context.Context, string) ([]*model.MusicJob, error) { return nil, nil }
func (stubMusic) DeleteJob(context.Context, string, string) error            { return nil }
func (stubMusic) ResolveArtwork(context.Context, string) (string, error)     { return "", nil }
func (stubMusic) Grouping(context.Context, string) (string, error)           { return "", nil }
func (stubMusic) ReadTags(*service.Upload) *model.TagsResponse               { return &model.TagsResponse{} }

func testConfig(gateway bool) *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{LogLevel: "info"},
		JWT:       config.JWTConfig{Secret: "server-secret"},
		RateLimit: config.RateLimitConfig{JobsPerHour: 10},
		Gateway:   config.GatewayConfig{Enabled: gateway},
	}
}

func get(t *testing.T, app *fiber.App, target string, headers map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealth(t *testing.T) {
	app := New(Deps{
		Config: testConfig(false),
		Music:  stubMusic{},
		Health: func() fiber.Map { return fiber.Map{"redis": true} },
		Logger: logging.NewNop(),
	})

	status, body := get(t, app, "/health", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok","services":{"redis":true}}`, body)
}

func TestAPIRequiresToken(t *testing.T) {
	app := New(Deps{Config: testConfig(false), Music: stubMusic{}, Logger: logging.NewNop()})

	status, _ := get(t, app, "/api/music/jobs/j1", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	token, err := auth.GenerateLegacyToken("u1", "", "server-secret")
	require.NoError(t, err)
	status, body := get(t, app, "/api/music/jobs/j1", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, `"id":"j1"`)

	// gateway headers are ignored outside gateway mode
	status, _ = get(t, app, "/api/music/jobs/j1", map[string]string{"X-User-Id": "u1"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestGatewayMode(t *testing.T) {
	app := New(Deps{Config: testConfig(true), Music: stubMusic{}, Logger: logging.NewNop()})

	status, _ := get(t, app, "/api/music/jobs/j1", map[string]string{"X-User-Id": "u1"})
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = get(t, app, "/api/music/jobs/j1", map[string]string{"X-User-Id": "u2"})
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	app := New(Deps{
		Config: testConfig(true),
		Music:  stubMusic{},
		Hub:    ws.NewHub(logging.NewNop()),
		Logger: logging.NewNop(),
	})

	status, body := get(t, app, "/ws/jobs/j1", map[string]string{"X-User-Id": "u1"})
	assert.Equal(t, fiber.StatusUpgradeRequired, status)
	assert.Contains(t, body, "SERVICE_ERROR")
}
