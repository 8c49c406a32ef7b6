package app

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/line/line-bot-sdk-go/v7/linebot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wenqt/florabot/config"
	"github.com/wenqt/florabot/lib"
	"github.com/wenqt/florabot/lib/broadcast"
	"github.com/wenqt/florabot/lib/imagecache"
	"github.com/wenqt/florabot/lib/llm"
	"github.com/wenqt/florabot/lib/models"
	"github.com/wenqt/florabot/lib/store"
	"github.com/wenqt/florabot/senders"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const channelSecret = "test-channel-secret"

type stubCompleter struct{}

func (stubCompleter) Complete(ctx context.Context, question string) llm.Reply {
	return llm.Reply{Text: "answer"}
}

func (stubCompleter) Understand(ctx context.Context, image []byte, question string) llm.Reply {
	return llm.Reply{Text: "vision"}
}

type stubFetcher struct{}

func (stubFetcher) FetchImage(ctx context.Context, messageID string) ([]byte, error) {
	return []byte("jpeg"), nil
}

type stubSender struct {
	replies []string
	pushed  []string
}

func (s *stubSender) Push(ctx context.Context, to, text string) error {
	s.pushed = append(s.pushed, to)
	return nil
}

func (s *stubSender) Reply(ctx context.Context, replyToken, text string) error {
	s.replies = append(s.replies, text)
	return nil
}

type apiFixture struct {
	handler http.Handler
	store   *store.Store
	sender  *stubSender
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.sqlite")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Subscriber{}))

	log := zap.NewNop()
	repo := store.NewStore(db, log)
	sender := &stubSender{}
	registry := senders.Registry{models.PlatformLINE: sender}

	bot, err := linebot.New(channelSecret, "test-channel-token")
	require.NoError(t, err)

	svc := lib.NewService(nil, &config.Config{}, log, repo, stubCompleter{}, imagecache.New(time.Minute), stubFetcher{}, registry)
	bcast := broadcast.New(log, repo, stubCompleter{}, registry, time.UTC)

	return &apiFixture{
		handler: router(&config.Config{}, log, bot, svc, bcast),
		store:   repo,
		sender:  sender,
	}
}

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func followBody() string {
	return `{"destination":"Ubot","events":[{"type":"follow","replyToken":"rt","source":{"type":"user","userId":"U1"},"timestamp":1700000000000,"mode":"active"}]}`
}

func TestCallback_InvalidSignatureRejectedBeforeHandlers(t *testing.T) {
	f := newAPIFixture(t)

	body := followBody()
	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(body))
	req.Header.Set("X-Line-Signature", "bogus")
	rec := httptest.NewRecorder()

	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// No handler ran: nothing was stored, nothing was replied.
	_, found, err := f.store.Get(context.Background(), "U1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, f.sender.replies)
}

func TestCallback_ValidSignatureDispatchesEvents(t *testing.T) {
	f := newAPIFixture(t)

	body := followBody()
	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(body))
	req.Header.Set("X-Line-Signature", sign(body))
	rec := httptest.NewRecorder()

	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	sub, found, err := f.store.Get(context.Background(), "U1")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, sub.Active)
	assert.Len(t, f.sender.replies, 1)
}

func TestCallback_EmptyEventListIsOK(t *testing.T) {
	f := newAPIFixture(t)

	body := `{"destination":"Ubot","events":[]}`
	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(body))
	req.Header.Set("X-Line-Signature", sign(body))
	rec := httptest.NewRecorder()

	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestTriggerBroadcast(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	_, err := f.store.SetActive(ctx, "U1", true)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin/broadcast", nil)
	rec := httptest.NewRecorder()

	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var report broadcast.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, []string{"U1"}, f.sender.pushed)

	// De-duplicated: triggering again the same day sends nothing.
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/broadcast", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Zero(t, report.Attempted)
	assert.Len(t, f.sender.pushed, 1)
}
