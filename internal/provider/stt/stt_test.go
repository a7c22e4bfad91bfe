package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTranscriber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		file.Close()

		json.NewEncoder(w).Encode(map[string]string{"text": "I feel stuck at work"})
	}))
	defer srv.Close()

	tr := NewHTTPTranscriber(srv.URL, "sk-test", "whisper-1", "en", 5*time.Second)
	text, err := tr.Transcribe(context.Background(), []byte("pcm-bytes"), "audio/pcm")
	require.NoError(t, err)
	assert.Equal(t, "I feel stuck at work", text)
}

func TestHTTPTranscriberEmptyTextIsNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": ""})
	}))
	defer srv.Close()

	tr := NewHTTPTranscriber(srv.URL, "", "", "", time.Second)
	text, err := tr.Transcribe(context.Background(), []byte("noise"), "audio/pcm")
	require.NoError(t, err, "no speech must be distinguishable from service failure")
	assert.Empty(t, text)
}

func TestHTTPTranscriberServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := NewHTTPTranscriber(srv.URL, "", "", "", time.Second)
	_, err := tr.Transcribe(context.Background(), []byte("pcm"), "audio/pcm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestIsWebSocketURL(t *testing.T) {
	assert.True(t, IsWebSocketURL("wss://api.example.com/v1"))
	assert.True(t, IsWebSocketURL("ws://127.0.0.1:9000"))
	assert.False(t, IsWebSocketURL("https://api.example.com/v1"))
}

func TestWSTranscriber(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/listen", r.URL.Path)
		assert.Equal(t, "linear16", r.URL.Query().Get("encoding"))

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var received int
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				received += len(msg)
				continue
			}
			// CloseStream marker: emit two final results and metadata.
			if strings.Contains(string(msg), "CloseStream") {
				write := func(text string, final bool) {
					conn.WriteJSON(map[string]any{
						"type":     "Results",
						"is_final": final,
						"channel": map[string]any{
							"alternatives": []map[string]string{{"transcript": text}},
						},
					})
				}
				write("I feel", false) // interim, ignored
				write("I feel stuck", true)
				write("at work", true)
				conn.WriteJSON(map[string]string{"type": "Metadata"})
				return
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	tr := NewWSTranscriber(wsURL, "key", "nova-2", "en", 5*time.Second)

	text, err := tr.Transcribe(context.Background(), make([]byte, 20000), "audio/pcm")
	require.NoError(t, err)
	assert.Equal(t, "I feel stuck at work", text)
}

func TestWSTranscriberDialFailure(t *testing.T) {
	tr := NewWSTranscriber("ws://127.0.0.1:1", "", "", "", time.Second)
	_, err := tr.Transcribe(context.Background(), []byte("pcm"), "audio/pcm")
	require.Error(t, err)
}
