package coach

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxcoach/voxcoach/internal/domain"
	"github.com/voxcoach/voxcoach/internal/logging"
	"github.com/voxcoach/voxcoach/internal/provider/llm"
	"github.com/voxcoach/voxcoach/internal/provider/retrieval"
	"github.com/voxcoach/voxcoach/internal/provider/tts"
	"github.com/voxcoach/voxcoach/internal/turnguard"
)

type fakeStore struct {
	mu        sync.Mutex
	saved     [][3]string
	summaries [][2]string
	history   []domain.HistoryMessage
	summary   string
	saveErr   error
	histErr   error
	sumErr    error
	saveSeen  chan struct{}
	sumSeen   chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		saveSeen: make(chan struct{}, 8),
		sumSeen:  make(chan struct{}, 8),
	}
}

func (f *fakeStore) SaveTurn(ctx context.Context, conversationID, userText, assistantText string) error {
	f.mu.Lock()
	f.saved = append(f.saved, [3]string{conversationID, userText, assistantText})
	f.mu.Unlock()
	f.saveSeen <- struct{}{}
	return f.saveErr
}

func (f *fakeStore) History(ctx context.Context, conversationID string, limit int) ([]domain.HistoryMessage, error) {
	return f.history, f.histErr
}

func (f *fakeStore) Summary(ctx context.Context, conversationID string) (string, error) {
	return f.summary, f.sumErr
}

func (f *fakeStore) SetSummary(ctx context.Context, conversationID, content string) error {
	f.mu.Lock()
	f.summaries = append(f.summaries, [2]string{conversationID, content})
	f.mu.Unlock()
	f.sumSeen <- struct{}{}
	return nil
}

func (f *fakeStore) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func testService(t *testing.T, cfg ServiceConfig, client llm.Client, speech tts.Synthesizer, search retrieval.Searcher, store TurnStore) *Service {
	t.Helper()
	log := logging.New(nil, "silent")
	reg := turnguard.NewRegistry(2500*time.Millisecond, 0, log)
	t.Cleanup(reg.Close)
	return NewService(cfg, client, speech, search, store, reg, log)
}

func voiceRequest(transcript string) domain.TurnRequest {
	return domain.TurnRequest{
		Transcript:     transcript,
		CallID:         "call-1",
		DeviceID:       "dev-1",
		ConversationID: "conv-1",
		Source:         domain.SourceVoice,
		WantAudio:      true,
	}
}

func TestRespond_EmptyTranscriptRejected(t *testing.T) {
	svc := testService(t, ServiceConfig{}, &llm.MockClient{}, nil, nil, nil)

	_, err := svc.Respond(context.Background(), voiceRequest("   \n "))
	assert.ErrorIs(t, err, ErrEmptyTranscript)
}

func TestRespond_TextOnlyReply(t *testing.T) {
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: "That sounds hard. What part weighs on you most?"}, nil
		},
	}
	svc := testService(t, ServiceConfig{}, client, nil, nil, nil)

	req := voiceRequest("I feel stuck at work")
	req.WantAudio = false
	turn, err := svc.Respond(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "That sounds hard. What part weighs on you most?", turn.Text)
	assert.Equal(t, turn.Text, turn.AssistantText)
	assert.Empty(t, turn.AudioBase64)
	assert.False(t, turn.UsedKnowledge)
	assert.False(t, turn.Skipped)
	assert.Equal(t, "conv-1", turn.ConversationID)
	assert.Equal(t, "call-1", turn.CallID)
}

func TestRespond_HistoryAndPersonaInPrompt(t *testing.T) {
	var captured llm.CompletionRequest
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			captured = req
			return &llm.CompletionResponse{Content: "ok"}, nil
		},
	}
	store := newFakeStore()
	store.history = []domain.HistoryMessage{
		{Role: domain.RoleUser, Content: "earlier question"},
		{Role: domain.RoleAssistant, Content: "earlier answer"},
	}
	store.summary = "caller is job hunting"

	svc := testService(t, ServiceConfig{Persona: "Focus on career changes.", HistoryLimit: 10}, client, nil, nil, store)

	req := voiceRequest("what next")
	req.WantAudio = false
	_, err := svc.Respond(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, captured.Messages, 3)
	assert.Equal(t, "earlier question", captured.Messages[0].Content)
	assert.Equal(t, "earlier answer", captured.Messages[1].Content)
	assert.Equal(t, llm.RoleUser, captured.Messages[2].Role)
	assert.Equal(t, "what next", captured.Messages[2].Content)

	assert.Contains(t, captured.System, "Focus on career changes.")
	assert.Contains(t, captured.System, "caller is job hunting")
	assert.Contains(t, captured.System, noContextMarker)
}

func TestRespond_DuplicateWithinWindowSkipped(t *testing.T) {
	var completions atomic.Int32
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			completions.Add(1)
			return &llm.CompletionResponse{Content: "reply"}, nil
		},
	}
	svc := testService(t, ServiceConfig{}, client, nil, nil, nil)

	req := voiceRequest("say that again")
	req.WantAudio = false

	first, err := svc.Respond(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Skipped)

	second, err := svc.Respond(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Empty(t, second.Text)
	assert.Equal(t, "conv-1", second.ConversationID)

	assert.Equal(t, int32(1), completions.Load(), "duplicate must not reach the model")
}

func TestRespond_SingleFlightSharesOneGeneration(t *testing.T) {
	gate := make(chan struct{})
	var completions atomic.Int32
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			completions.Add(1)
			<-gate
			return &llm.CompletionResponse{Content: "shared answer"}, nil
		},
	}
	svc := testService(t, ServiceConfig{}, client, nil, nil, nil)

	results := make(chan *domain.AssistantTurn, 2)
	errs := make(chan error, 2)

	// Two different transcripts on the same key: the second passes the
	// duplicate check but must attach to the in-flight generation.
	for _, transcript := range []string{"first wording", "second wording"} {
		req := voiceRequest(transcript)
		req.WantAudio = false
		go func(r domain.TurnRequest) {
			turn, err := svc.Respond(context.Background(), r)
			results <- turn
			errs <- err
		}(req)
	}

	// Let both callers reach the registry before releasing the model.
	time.Sleep(100 * time.Millisecond)
	close(gate)

	for i := 0; i < 2; i++ {
		require.NoError(t, <-errs)
		turn := <-results
		require.NotNil(t, turn)
		assert.Equal(t, "shared answer", turn.Text)
	}
	assert.Equal(t, int32(1), completions.Load(), "same key must collapse to one generation")
}

func TestRespond_KeyReleasedAfterFailure(t *testing.T) {
	var calls atomic.Int32
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("upstream down")
			}
			return &llm.CompletionResponse{Content: "recovered"}, nil
		},
	}
	svc := testService(t, ServiceConfig{}, client, nil, nil, nil)

	req := voiceRequest("try this")
	req.WantAudio = false
	_, err := svc.Respond(context.Background(), req)
	require.Error(t, err)

	// A different transcript on the same key must run fresh.
	retry := voiceRequest("try this again")
	retry.WantAudio = false
	turn, err := svc.Respond(context.Background(), retry)
	require.NoError(t, err)
	assert.Equal(t, "recovered", turn.Text)
}

func TestRespond_TTSFailureDegradesToText(t *testing.T) {
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: "still here for you"}, nil
		},
	}
	speech := &tts.Mock{
		SynthesizeFunc: func(ctx context.Context, text string) (*tts.Clip, error) {
			return nil, errors.New("voice service down")
		},
	}
	svc := testService(t, ServiceConfig{}, client, speech, nil, nil)

	turn, err := svc.Respond(context.Background(), voiceRequest("hello"))
	require.NoError(t, err, "speech failure must not fail the turn")
	assert.Equal(t, "still here for you", turn.Text)
	assert.Empty(t, turn.AudioBase64)
	assert.Empty(t, turn.MimeType)
}

func TestRespond_AudioAttachedWhenWanted(t *testing.T) {
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: "spoken reply"}, nil
		},
	}
	speech := &tts.Mock{
		SynthesizeFunc: func(ctx context.Context, text string) (*tts.Clip, error) {
			assert.Equal(t, "spoken reply", text)
			return &tts.Clip{Audio: []byte{0x01, 0x02}, MimeType: "audio/mpeg"}, nil
		},
	}
	svc := testService(t, ServiceConfig{}, client, speech, nil, nil)

	turn, err := svc.Respond(context.Background(), voiceRequest("hello"))
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{0x01, 0x02}), turn.AudioBase64)
	assert.Equal(t, "audio/mpeg", turn.MimeType)
}

func TestRespond_NoAudioWhenNotWanted(t *testing.T) {
	synthCalled := false
	client := &llm.MockClient{}
	speech := &tts.Mock{
		SynthesizeFunc: func(ctx context.Context, text string) (*tts.Clip, error) {
			synthCalled = true
			return &tts.Clip{Audio: []byte("x"), MimeType: "audio/mpeg"}, nil
		},
	}
	svc := testService(t, ServiceConfig{}, client, speech, nil, nil)

	req := voiceRequest("hello")
	req.WantAudio = false
	turn, err := svc.Respond(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, turn.AudioBase64)
	assert.False(t, synthCalled)
}

func TestRespond_RetrievalTriggersLexiconPass(t *testing.T) {
	var systems []string
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			systems = append(systems, req.System)
			if len(systems) == 1 {
				return &llm.CompletionResponse{Content: "draft about growth mindset"}, nil
			}
			assert.Equal(t, "draft about growth mindset", req.Messages[0].Content)
			return &llm.CompletionResponse{Content: "rewritten with course vocabulary"}, nil
		},
	}
	search := &retrieval.Mock{
		SearchFunc: func(ctx context.Context, query string, topK int) (string, error) {
			return "passage one\n\npassage two", nil
		},
	}
	svc := testService(t, ServiceConfig{TopK: 3}, client, nil, search, nil)

	req := voiceRequest("how do I grow")
	req.WantAudio = false
	turn, err := svc.Respond(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, systems, 2)
	assert.Contains(t, systems[0], "passage one")
	assert.Contains(t, systems[1], "Reference passages")
	assert.Equal(t, "rewritten with course vocabulary", turn.Text)
	assert.True(t, turn.UsedKnowledge)
}

func TestRespond_LexiconPassFailureKeepsDraft(t *testing.T) {
	var calls atomic.Int32
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if calls.Add(1) == 1 {
				return &llm.CompletionResponse{Content: "original draft"}, nil
			}
			return nil, errors.New("model overloaded")
		},
	}
	search := &retrieval.Mock{
		SearchFunc: func(ctx context.Context, query string, topK int) (string, error) {
			return "some passage", nil
		},
	}
	svc := testService(t, ServiceConfig{}, client, nil, search, nil)

	req := voiceRequest("question")
	req.WantAudio = false
	turn, err := svc.Respond(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "original draft", turn.Text)
	assert.True(t, turn.UsedKnowledge)
}

func TestRespond_RetrievalFailureContinuesWithout(t *testing.T) {
	var completions atomic.Int32
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			completions.Add(1)
			assert.Contains(t, req.System, noContextMarker)
			return &llm.CompletionResponse{Content: "reply"}, nil
		},
	}
	search := &retrieval.Mock{
		SearchFunc: func(ctx context.Context, query string, topK int) (string, error) {
			return "", errors.New("index offline")
		},
	}
	svc := testService(t, ServiceConfig{}, client, nil, search, nil)

	req := voiceRequest("question")
	req.WantAudio = false
	turn, err := svc.Respond(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, turn.UsedKnowledge)
	assert.Equal(t, int32(1), completions.Load(), "no lexicon pass without context")
}

func TestRespond_QueryTruncatedForRetrieval(t *testing.T) {
	var gotQuery string
	search := &retrieval.Mock{
		SearchFunc: func(ctx context.Context, query string, topK int) (string, error) {
			gotQuery = query
			return "", nil
		},
	}
	svc := testService(t, ServiceConfig{QueryMaxChars: 10}, &llm.MockClient{}, nil, search, nil)

	req := voiceRequest("this transcript is much longer than ten characters")
	req.WantAudio = false
	_, err := svc.Respond(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "this trans", gotQuery)
}

func TestRespond_TurnPersistedInBackground(t *testing.T) {
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: "saved reply"}, nil
		},
	}
	store := newFakeStore()
	svc := testService(t, ServiceConfig{}, client, nil, nil, store)

	req := voiceRequest("remember this")
	req.WantAudio = false
	_, err := svc.Respond(context.Background(), req)
	require.NoError(t, err)

	select {
	case <-store.saveSeen:
	case <-time.After(2 * time.Second):
		t.Fatal("turn was never persisted")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.saved, 1)
	assert.Equal(t, "conv-1", store.saved[0][0])
	assert.Equal(t, "remember this", store.saved[0][1])
	assert.Equal(t, "saved reply", store.saved[0][2])
}

func TestRespond_PersistenceFailureNeverSurfaces(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("disk full")
	svc := testService(t, ServiceConfig{}, &llm.MockClient{}, nil, nil, store)

	req := voiceRequest("hello")
	req.WantAudio = false
	turn, err := svc.Respond(context.Background(), req)
	require.NoError(t, err)
	assert.NotNil(t, turn)

	select {
	case <-store.saveSeen:
	case <-time.After(2 * time.Second):
		t.Fatal("persistence was never attempted")
	}
}

func TestRespond_SummaryRefreshedWhenWindowFull(t *testing.T) {
	var mu sync.Mutex
	var systems []string
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			mu.Lock()
			systems = append(systems, req.System)
			n := len(systems)
			mu.Unlock()
			if n == 1 {
				return &llm.CompletionResponse{Content: "the reply"}, nil
			}
			assert.Contains(t, req.Messages[0].Content, "older question")
			return &llm.CompletionResponse{Content: "caller is weighing a career change"}, nil
		},
	}
	store := newFakeStore()
	store.summary = "caller started job hunting last month"
	// One more turn half than the prompt window holds.
	store.history = []domain.HistoryMessage{
		{Role: domain.RoleUser, Content: "older question"},
		{Role: domain.RoleAssistant, Content: "older answer"},
		{Role: domain.RoleUser, Content: "newest question"},
	}
	svc := testService(t, ServiceConfig{HistoryLimit: 2}, client, nil, nil, store)

	req := voiceRequest("keep going")
	req.WantAudio = false
	_, err := svc.Respond(context.Background(), req)
	require.NoError(t, err)

	select {
	case <-store.sumSeen:
	case <-time.After(2 * time.Second):
		t.Fatal("summary was never refreshed")
	}

	store.mu.Lock()
	require.Len(t, store.summaries, 1)
	assert.Equal(t, "conv-1", store.summaries[0][0])
	assert.Equal(t, "caller is weighing a career change", store.summaries[0][1])
	store.mu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, systems, 2)
	assert.Contains(t, systems[1], "Condense")
	assert.Contains(t, systems[1], "caller started job hunting last month")
}

func TestRespond_SummaryUntouchedWithinWindow(t *testing.T) {
	store := newFakeStore()
	store.history = []domain.HistoryMessage{
		{Role: domain.RoleUser, Content: "only question"},
		{Role: domain.RoleAssistant, Content: "only answer"},
	}
	svc := testService(t, ServiceConfig{HistoryLimit: 10}, &llm.MockClient{}, nil, nil, store)

	req := voiceRequest("hello")
	req.WantAudio = false
	_, err := svc.Respond(context.Background(), req)
	require.NoError(t, err)

	select {
	case <-store.saveSeen:
	case <-time.After(2 * time.Second):
		t.Fatal("turn was never persisted")
	}
	time.Sleep(50 * time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.summaries, "short conversations need no summary")
}

func TestRespond_CallerDisconnectDoesNotKillGeneration(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			close(started)
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return &llm.CompletionResponse{Content: "finished anyway"}, nil
		},
	}
	svc := testService(t, ServiceConfig{}, client, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := voiceRequest("slow question")
	req.WantAudio = false

	done := make(chan struct{})
	var turn *domain.AssistantTurn
	var err error
	go func() {
		turn, err = svc.Respond(ctx, req)
		close(done)
	}()

	// The first caller hangs up mid-generation. The computation is shared
	// property of the key, so it must run to completion regardless.
	<-started
	cancel()
	close(release)

	<-done
	require.NoError(t, err)
	require.NotNil(t, turn)
	assert.Equal(t, "finished anyway", turn.Text)
}

func TestRespond_HistoryFailureContinues(t *testing.T) {
	store := newFakeStore()
	store.histErr = errors.New("table locked")
	store.sumErr = errors.New("table locked")
	svc := testService(t, ServiceConfig{}, &llm.MockClient{}, nil, nil, store)

	req := voiceRequest("hello")
	req.WantAudio = false
	turn, err := svc.Respond(context.Background(), req)
	require.NoError(t, err)
	assert.NotNil(t, turn)
}

func TestRespond_EmptyModelReplyIsError(t *testing.T) {
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: "   \n"}, nil
		},
	}
	svc := testService(t, ServiceConfig{}, client, nil, nil, nil)

	req := voiceRequest("hello")
	req.WantAudio = false
	_, err := svc.Respond(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty reply")
}

func TestRespond_ReplyBounded(t *testing.T) {
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: strings.Repeat("word ", 200)}, nil
		},
	}
	svc := testService(t, ServiceConfig{MaxReplyChars: 120}, client, nil, nil, nil)

	req := voiceRequest("hello")
	req.WantAudio = false
	turn, err := svc.Respond(context.Background(), req)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(turn.Text)), 120)
}
