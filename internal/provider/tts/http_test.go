package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSynthesizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/synthesize", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("xi-api-key"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Take one small step today.", req["text"])
		assert.Equal(t, "warm", req["voice"])

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	s := NewHTTPSynthesizer(srv.URL, "key-1", "warm", "mp3", 5*time.Second)
	clip, err := s.Synthesize(context.Background(), "Take one small step today.")
	require.NoError(t, err)
	require.NotNil(t, clip)
	assert.Equal(t, []byte("mp3-bytes"), clip.Audio)
	assert.Equal(t, "audio/mpeg", clip.MimeType)
}

func TestHTTPSynthesizerEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewHTTPSynthesizer(srv.URL, "", "", "", time.Second)
	clip, err := s.Synthesize(context.Background(), "hello")
	require.NoError(t, err)
	assert.Nil(t, clip, "no audio is a valid null result")
}

func TestHTTPSynthesizerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice not found", http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewHTTPSynthesizer(srv.URL, "", "ghost", "mp3", time.Second)
	_, err := s.Synthesize(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
