package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callowcreation/sfs-api/internal/store"
	"github.com/callowcreation/sfs-api/internal/websocket"
	"github.com/callowcreation/sfs-api/pkg/auth"
	"github.com/callowcreation/sfs-api/pkg/models"
)

var (
	testSecret      = []byte("handlers-test-secret")
	testBotClientID = "bot-client"
	testBotSecret   = []byte("bot-secret")
)

type fakeQueue struct {
	mu       sync.Mutex
	events   []models.ShoutoutEvent
	inserted []string
	err      error
}

func (f *fakeQueue) Insert(ctx context.Context, channelID, streamerID, posterID string, auto bool) (*models.ShoutoutEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if auto {
		return nil, nil
	}
	ev := models.ShoutoutEvent{Key: "new-key", ChannelID: channelID, StreamerID: streamerID, PosterID: posterID}
	f.inserted = append(f.inserted, streamerID)
	return &ev, nil
}

func (f *fakeQueue) Remove(ctx context.Context, channelID, streamerID, key string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if key == "missing" || streamerID == "missing" {
		return 0, store.ErrNotFound
	}
	return 1, nil
}

func (f *fakeQueue) MoveUp(ctx context.Context, channelID, key string) error {
	return f.err
}

func (f *fakeQueue) List(ctx context.Context, channelID string) ([]models.ShoutoutEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

type fakeRegistry struct {
	pinned *models.PinnedItem
	err    error
}

func (f *fakeRegistry) Pin(ctx context.Context, channelID, pinnerID, key string) (*models.PinnedItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pinned, nil
}

func (f *fakeRegistry) Get(ctx context.Context, channelID string) (*models.PinnedItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pinned, nil
}

func (f *fakeRegistry) Release(ctx context.Context, channelID string) error {
	return f.err
}

type fakeMigrator struct {
	mu        sync.Mutex
	triggered []string
	status    models.MigrationCheckpoint
}

func (f *fakeMigrator) Status(ctx context.Context, channelID string) (*models.MigrationCheckpoint, error) {
	cp := f.status
	cp.ChannelID = channelID
	return &cp, nil
}

func (f *fakeMigrator) TriggerAsync(channelID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered = append(f.triggered, channelID)
}

type fakeSettings struct {
	mu       sync.Mutex
	saved    map[string]models.Settings
	settings models.Settings
}

func (f *fakeSettings) Effective(ctx context.Context, channelID string) (models.Settings, error) {
	return f.settings, nil
}

func (f *fakeSettings) Save(ctx context.Context, channelID string, settings *models.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[string]models.Settings{}
	}
	f.saved[channelID] = *settings
	return nil
}

type fakeChannels struct {
	ids []string
}

func (f *fakeChannels) Touch(ctx context.Context, channelID string) error { return nil }
func (f *fakeChannels) ListIDs(ctx context.Context) ([]string, error)     { return f.ids, nil }

type fixture struct {
	queue    *fakeQueue
	registry *fakeRegistry
	migrator *fakeMigrator
	settings *fakeSettings
	channels *fakeChannels
	router   *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		queue:    &fakeQueue{},
		registry: &fakeRegistry{},
		migrator: &fakeMigrator{},
		settings: &fakeSettings{settings: models.DefaultSettings()},
		channels: &fakeChannels{},
	}
	Init(logger, f.queue, f.registry, f.migrator, f.settings, f.channels, websocket.NewHub(logger))

	f.router = gin.New()
	RegisterRoutes(f.router, testSecret, testBotClientID, testBotSecret)
	return f
}

func bearerFor(t *testing.T, channelID string) string {
	t.Helper()
	token, err := auth.SignServerToken(channelID, "user-1", testSecret)
	require.NoError(t, err)
	return "Bearer " + token
}

func doJSON(t *testing.T, router *gin.Engine, method, path, authHeader string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetShoutouts_RequiresAuth(t *testing.T) {
	f := newFixture(t)
	w := doJSON(t, f.router, http.MethodGet, "/api/shoutouts/chan-1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetShoutouts_RejectsForeignChannel(t *testing.T) {
	f := newFixture(t)
	w := doJSON(t, f.router, http.MethodGet, "/api/shoutouts/chan-1", bearerFor(t, "other-chan"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetShoutouts_ReturnsRotation(t *testing.T) {
	f := newFixture(t)
	f.queue.events = []models.ShoutoutEvent{
		{Key: "k2", ChannelID: "chan-1", StreamerID: "b"},
		{Key: "k1", ChannelID: "chan-1", StreamerID: "a"},
	}

	w := doJSON(t, f.router, http.MethodGet, "/api/shoutouts/chan-1", bearerFor(t, "chan-1"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		BroadcasterID string                 `json:"broadcaster_id"`
		Shoutouts     []models.ShoutoutEvent `json:"shoutouts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "chan-1", resp.BroadcasterID)
	require.Len(t, resp.Shoutouts, 2)
	assert.Equal(t, "k2", resp.Shoutouts[0].Key)
}

func TestInsertShoutout_Created(t *testing.T) {
	f := newFixture(t)
	w := doJSON(t, f.router, http.MethodPut, "/api/shoutouts/chan-1", bearerFor(t, "chan-1"),
		InsertShoutoutRequest{StreamerID: "guest"})
	require.Equal(t, http.StatusCreated, w.Code)

	var ev models.ShoutoutEvent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ev))
	assert.Equal(t, "new-key", ev.Key)
	assert.Equal(t, []string{"guest"}, f.queue.inserted)
}

func TestInsertShoutout_AutoDroppedIsNoContent(t *testing.T) {
	f := newFixture(t)
	w := doJSON(t, f.router, http.MethodPut, "/api/shoutouts/chan-1", bearerFor(t, "chan-1"),
		InsertShoutoutRequest{StreamerID: "guest", Auto: true})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestInsertShoutout_MissingStreamer(t *testing.T) {
	f := newFixture(t)
	w := doJSON(t, f.router, http.MethodPut, "/api/shoutouts/chan-1", bearerFor(t, "chan-1"),
		map[string]string{"poster_id": "p"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemoveShoutout_ReturnsIndex(t *testing.T) {
	f := newFixture(t)
	w := doJSON(t, f.router, http.MethodDelete, "/api/shoutouts/chan-1", bearerFor(t, "chan-1"),
		RemoveShoutoutRequest{StreamerID: "guest"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp["index"])
}

func TestRemoveShoutout_NotFound(t *testing.T) {
	f := newFixture(t)
	w := doJSON(t, f.router, http.MethodDelete, "/api/shoutouts/chan-1", bearerFor(t, "chan-1"),
		RemoveShoutoutRequest{Key: "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRemoveShoutout_NoSelector(t *testing.T) {
	f := newFixture(t)
	w := doJSON(t, f.router, http.MethodDelete, "/api/shoutouts/chan-1", bearerFor(t, "chan-1"),
		RemoveShoutoutRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPinShoutout_Conflict(t *testing.T) {
	f := newFixture(t)
	f.registry.err = store.ErrConflict
	w := doJSON(t, f.router, http.MethodPut, "/api/shoutouts/chan-1/pin-item", bearerFor(t, "chan-1"),
		PinRequest{Key: "k1"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTransientErrorIsRetryable503(t *testing.T) {
	f := newFixture(t)
	f.queue.err = errors.New("connection refused")

	w := doJSON(t, f.router, http.MethodGet, "/api/shoutouts/chan-1", bearerFor(t, "chan-1"), nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["retryable"])
}

func TestGetMigrationStatus(t *testing.T) {
	f := newFixture(t)
	f.migrator.status = models.MigrationCheckpoint{InProgress: true, ConvertedTotal: 250}

	w := doJSON(t, f.router, http.MethodGet, "/api/shoutouts/chan-1/migration", bearerFor(t, "chan-1"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var cp models.MigrationCheckpoint
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cp))
	assert.True(t, cp.InProgress)
	assert.Equal(t, 250, cp.ConvertedTotal)
}

func TestSaveSettings_RoundTrip(t *testing.T) {
	f := newFixture(t)
	body := models.DefaultSettings()
	body.AutoShoutouts = true

	w := doJSON(t, f.router, http.MethodPost, "/api/settings/chan-1", bearerFor(t, "chan-1"), body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.settings.saved["chan-1"].AutoShoutouts)
}

func botAuthHeader() string {
	raw := testBotClientID + ":" + base64.StdEncoding.EncodeToString(testBotSecret)
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

func TestListChannelIDs_ServiceAuth(t *testing.T) {
	f := newFixture(t)
	f.channels.ids = []string{"a", "b"}

	w := doJSON(t, f.router, http.MethodGet, "/channels/ids", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, f.router, http.MethodGet, "/channels/ids", botAuthHeader(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var ids []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ids))
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestChannelBehaviours_FallbackCommands(t *testing.T) {
	f := newFixture(t)
	f.settings.settings.Commands = nil
	f.settings.settings.AutoShoutouts = true

	w := doJSON(t, f.router, http.MethodGet, "/channels/behaviours/chan-1", botAuthHeader(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["auto-shoutouts"])
	assert.Equal(t, []interface{}{"so", "shoutout"}, resp["commands"])
}
