package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(endpoint string) *Client {
	return &Client{
		log:            zap.NewNop(),
		transport:      http.DefaultTransport,
		endpoint:       endpoint,
		apiKey:         "testkey",
		model:          "deepseek-chat",
		visionEndpoint: endpoint,
		visionAPIKey:   "testkey",
		visionModel:    "deepseek-vl",
		timeout:        time.Second,
	}
}

func completionBody(text string) string {
	return `{"choices":[{"message":{"role":"assistant","content":` + jsonString(text) + `}}]}`
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestComplete_ExtractsReplyText(t *testing.T) {
	var got completionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer testkey", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody("  多肉植物喜歡陽光。  ")))
	}))
	defer server.Close()

	reply := newTestClient(server.URL).Complete(context.Background(), "多肉怎麼養？")

	assert.False(t, reply.Fallback)
	assert.Equal(t, "多肉植物喜歡陽光。", reply.Text)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, SystemPersona, got.Messages[0].Content)
	assert.Contains(t, got.Messages[1].Content, "多肉怎麼養？")
}

func TestComplete_FallsBackOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	reply := newTestClient(server.URL).Complete(context.Background(), "hi")

	assert.True(t, reply.Fallback)
	assert.Equal(t, FallbackAnswer, reply.Text)
}

func TestComplete_FallsBackOnMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	reply := newTestClient(server.URL).Complete(context.Background(), "hi")

	assert.True(t, reply.Fallback)
	assert.Equal(t, FallbackAnswer, reply.Text)
}

func TestComplete_FallsBackOnEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	reply := newTestClient(server.URL).Complete(context.Background(), "hi")

	assert.True(t, reply.Fallback)
}

func TestComplete_FallsBackOnTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Write([]byte(completionBody("too late")))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	c.timeout = 10 * time.Millisecond

	reply := c.Complete(context.Background(), "hi")

	assert.True(t, reply.Fallback)
	assert.Equal(t, FallbackAnswer, reply.Text)
}

func TestComplete_FallsBackWithoutAPIKey(t *testing.T) {
	c := newTestClient("http://unused.invalid")
	c.apiKey = ""

	reply := c.Complete(context.Background(), "hi")

	assert.True(t, reply.Fallback)
	assert.Equal(t, FallbackAnswer, reply.Text)
}

func TestUnderstand_SendsImageAsDataURL(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.Write([]byte(completionBody("這是龜背芋。")))
	}))
	defer server.Close()

	reply := newTestClient(server.URL).Understand(context.Background(), []byte{0xFF, 0xD8, 0xFF}, "這是什麼？")

	assert.False(t, reply.Fallback)
	assert.Equal(t, "這是龜背芋。", reply.Text)

	messages := raw["messages"].([]any)
	require.Len(t, messages, 2)
	parts := messages[1].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)

	text := parts[0].(map[string]any)
	assert.Equal(t, "text", text["type"])
	assert.Contains(t, text["text"], "這是什麼？")

	image := parts[1].(map[string]any)
	assert.Equal(t, "image_url", image["type"])
	url := image["image_url"].(map[string]any)["url"].(string)
	assert.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"))
}

func TestUnderstand_FallsBackOnFailureOrMissingImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	c := newTestClient(server.URL)

	reply := c.Understand(context.Background(), []byte{1}, "hi")
	assert.True(t, reply.Fallback)
	assert.Equal(t, FallbackVision, reply.Text)

	reply = c.Understand(context.Background(), nil, "hi")
	assert.True(t, reply.Fallback)
}
