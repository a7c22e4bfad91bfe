// Package coach implements the reply generation pipeline behind the
// coach gateway: dedupe, single-flight, retrieval, completion, speech.
package coach

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/voxcoach/voxcoach/internal/domain"
	"github.com/voxcoach/voxcoach/internal/logging"
	"github.com/voxcoach/voxcoach/internal/provider/llm"
	"github.com/voxcoach/voxcoach/internal/provider/retrieval"
	"github.com/voxcoach/voxcoach/internal/provider/tts"
	"github.com/voxcoach/voxcoach/internal/turnguard"
)

// ErrEmptyTranscript rejects requests with nothing to respond to.
var ErrEmptyTranscript = errors.New("empty transcript")

// TurnStore persists finished turns and serves prompt history. All methods
// are best-effort from the pipeline's point of view.
type TurnStore interface {
	SaveTurn(ctx context.Context, conversationID, userText, assistantText string) error
	History(ctx context.Context, conversationID string, limit int) ([]domain.HistoryMessage, error)
	Summary(ctx context.Context, conversationID string) (string, error)
	SetSummary(ctx context.Context, conversationID, content string) error
}

// ServiceConfig configures the reply pipeline.
type ServiceConfig struct {
	Persona       string
	HistoryLimit  int
	MaxReplyChars int
	QueryMaxChars int

	Model           string
	MaxTokens       int
	Temperature     *float64
	PresencePenalty *float64

	TopK int

	// Per-collaborator upper bounds. A hung dependency must never pin an
	// in-flight computation and starve later requests on the same key.
	LLMTimeout       time.Duration
	RetrievalTimeout time.Duration
	TTSTimeout       time.Duration
	PersistTimeout   time.Duration
}

// Service coordinates one reply generation per turn request.
type Service struct {
	cfg      ServiceConfig
	client   llm.Client
	speech   tts.Synthesizer    // nil disables audio replies
	search   retrieval.Searcher // nil disables knowledge retrieval
	store    TurnStore          // nil disables history and persistence
	registry *turnguard.Registry
	log      *logging.Logger
}

// NewService creates the coach service. speech, search, and store may be
// nil; the pipeline degrades feature by feature.
func NewService(
	cfg ServiceConfig,
	client llm.Client,
	speech tts.Synthesizer,
	search retrieval.Searcher,
	store TurnStore,
	registry *turnguard.Registry,
	log *logging.Logger,
) *Service {
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 30 * time.Second
	}
	if cfg.RetrievalTimeout <= 0 {
		cfg.RetrievalTimeout = 5 * time.Second
	}
	if cfg.TTSTimeout <= 0 {
		cfg.TTSTimeout = 20 * time.Second
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	return &Service{
		cfg:      cfg,
		client:   client,
		speech:   speech,
		search:   search,
		store:    store,
		registry: registry,
		log:      log.Sub("coach"),
	}
}

// Respond handles one turn request: duplicate suppression, single-flight
// collapse, then the generation pipeline.
func (s *Service) Respond(ctx context.Context, req domain.TurnRequest) (*domain.AssistantTurn, error) {
	transcript := strings.TrimSpace(req.Transcript)
	if transcript == "" {
		return nil, ErrEmptyTranscript
	}

	key := req.Key()
	fp := turnguard.Fingerprint(transcript)

	if s.registry.Duplicate(key, fp, time.Now()) {
		s.log.Info().Str("key", key).Msg("duplicate turn suppressed")
		return &domain.AssistantTurn{
			Skipped:        true,
			ConversationID: req.ConversationID,
			CallID:         req.CallID,
		}, nil
	}

	turn, shared, err := s.registry.Do(key, func() (*domain.AssistantTurn, error) {
		// The computation is shared by every caller that joins this key,
		// so it must not die with the first caller's request context. It
		// runs detached, bounded by the sum of the per-step budgets.
		gctx, cancel := context.WithTimeout(context.Background(), s.generationBudget())
		defer cancel()
		return s.generate(gctx, req, transcript)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.log.Debug().Str("key", key).Msg("joined in-flight generation")
	}
	return turn, nil
}

// generationBudget bounds one detached pipeline run: two model passes plus
// retrieval and synthesis.
func (s *Service) generationBudget() time.Duration {
	return 2*s.cfg.LLMTimeout + s.cfg.RetrievalTimeout + s.cfg.TTSTimeout
}

// generate runs the pipeline body inside the single-flight group.
func (s *Service) generate(ctx context.Context, req domain.TurnRequest, transcript string) (*domain.AssistantTurn, error) {
	start := time.Now()

	history, summary := s.fetchHistory(ctx, req.ConversationID)
	knowledge := s.retrieveKnowledge(ctx, transcript)

	draft, err := s.generateReply(ctx, transcript, history, summary, knowledge)
	if err != nil {
		return nil, err
	}

	reply := draft
	if knowledge != "" {
		reply = s.conformToLexicon(ctx, draft, knowledge)
	}

	turn := &domain.AssistantTurn{
		Text:           reply,
		AssistantText:  reply,
		UsedKnowledge:  knowledge != "",
		ConversationID: req.ConversationID,
		CallID:         req.CallID,
	}

	if req.WantAudio {
		if clip := s.synthesizeSpeech(ctx, reply); clip != nil {
			turn.AudioBase64 = base64.StdEncoding.EncodeToString(clip.Audio)
			turn.MimeType = clip.MimeType
		}
	}

	s.persistTurn(req.ConversationID, transcript, reply)

	s.log.Info().
		Str("key", req.Key()).
		Str("source", req.Source).
		Bool("usedKnowledge", turn.UsedKnowledge).
		Bool("hasAudio", turn.AudioBase64 != "").
		Dur("duration", time.Since(start)).
		Msg("reply generated")

	return turn, nil
}

// fetchHistory loads recent turns and the rolling summary. Store failures
// degrade to an empty history, never to a failed request.
func (s *Service) fetchHistory(ctx context.Context, conversationID string) ([]domain.HistoryMessage, string) {
	if s.store == nil || conversationID == "" {
		return nil, ""
	}

	history, err := s.store.History(ctx, conversationID, s.cfg.HistoryLimit)
	if err != nil {
		s.log.Warn().Err(err).Msg("history fetch failed, continuing without")
		history = nil
	}
	summary, err := s.store.Summary(ctx, conversationID)
	if err != nil {
		s.log.Warn().Err(err).Msg("summary fetch failed, continuing without")
		summary = ""
	}
	return history, summary
}

// retrieveKnowledge queries the vector search collaborator with a bounded
// query. Empty context is the common case; failures degrade to empty.
func (s *Service) retrieveKnowledge(ctx context.Context, transcript string) string {
	if s.search == nil {
		return ""
	}

	query := transcript
	if s.cfg.QueryMaxChars > 0 && len(query) > s.cfg.QueryMaxChars {
		query = query[:s.cfg.QueryMaxChars]
	}

	rctx, cancel := context.WithTimeout(ctx, s.cfg.RetrievalTimeout)
	defer cancel()

	knowledge, err := s.search.Search(rctx, query, s.cfg.TopK)
	if err != nil {
		s.log.Warn().Err(err).Msg("knowledge retrieval failed, continuing without")
		return ""
	}
	return knowledge
}

// generateReply invokes the model with the full prompt and sanitizes the
// result into spoken-reply shape.
func (s *Service) generateReply(ctx context.Context, transcript string, history []domain.HistoryMessage, summary, knowledge string) (string, error) {
	system := BuildSystemPrompt(PromptConfig{
		Persona:          s.cfg.Persona,
		RetrievalContext: knowledge,
		Summary:          summary,
	})

	messages := make([]llm.Message, 0, len(history)+1)
	for _, h := range history {
		messages = append(messages, llm.Message{Role: h.Role, Content: h.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: transcript})

	lctx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()

	resp, err := s.client.Complete(lctx, llm.CompletionRequest{
		Model:           s.cfg.Model,
		System:          system,
		Messages:        messages,
		MaxTokens:       s.cfg.MaxTokens,
		Temperature:     s.cfg.Temperature,
		PresencePenalty: s.cfg.PresencePenalty,
	})
	if err != nil {
		return "", fmt.Errorf("completing reply: %w", err)
	}

	reply := Sanitize(resp.Content, s.cfg.MaxReplyChars)
	if reply == "" {
		return "", errors.New("model returned an empty reply")
	}
	return reply, nil
}

// conformToLexicon runs the second model pass that rewrites the draft to
// stay within the vocabulary of the retrieved passages. Any failure falls
// back to the unrewritten draft.
func (s *Service) conformToLexicon(ctx context.Context, draft, knowledge string) string {
	lctx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()

	resp, err := s.client.Complete(lctx, llm.CompletionRequest{
		Model:     s.cfg.Model,
		System:    buildConformancePrompt(knowledge),
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: draft}},
		MaxTokens: s.cfg.MaxTokens,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("lexicon pass failed, keeping draft")
		return draft
	}

	rewritten := Sanitize(resp.Content, s.cfg.MaxReplyChars)
	if rewritten == "" {
		return draft
	}
	return rewritten
}

// synthesizeSpeech converts the reply to audio. Failures degrade the turn
// to text-only.
func (s *Service) synthesizeSpeech(ctx context.Context, reply string) *tts.Clip {
	if s.speech == nil {
		return nil
	}

	tctx, cancel := context.WithTimeout(ctx, s.cfg.TTSTimeout)
	defer cancel()

	clip, err := s.speech.Synthesize(tctx, reply)
	if err != nil {
		s.log.Warn().Err(err).Msg("speech synthesis failed, replying text-only")
		return nil
	}
	if clip == nil || len(clip.Audio) == 0 {
		return nil
	}
	return clip
}

// persistTurn saves the turn without blocking the response, then refreshes
// the rolling summary. The request context may already be gone when the
// write lands, so detached contexts with their own bounds are used.
func (s *Service) persistTurn(conversationID, userText, assistantText string) {
	if s.store == nil || conversationID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
		err := s.store.SaveTurn(ctx, conversationID, userText, assistantText)
		cancel()
		if err != nil {
			s.log.Warn().Err(err).Str("conversationId", conversationID).Msg("turn persistence failed")
			return
		}
		s.refreshSummary(conversationID)
	}()
}

// refreshSummary condenses the conversation once it outgrows the prompt
// window, so turns that fall off the history stay represented in later
// prompts. Every step is best-effort.
func (s *Service) refreshSummary(conversationID string) {
	window := s.cfg.HistoryLimit
	if window <= 0 {
		window = 20
	}

	sctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
	defer cancel()

	history, err := s.store.History(sctx, conversationID, window+1)
	if err != nil || len(history) <= window {
		return
	}
	prior, err := s.store.Summary(sctx, conversationID)
	if err != nil {
		prior = ""
	}

	var b strings.Builder
	for _, h := range history {
		b.WriteString(h.Role)
		b.WriteString(": ")
		b.WriteString(h.Content)
		b.WriteString("\n")
	}

	lctx, lcancel := context.WithTimeout(context.Background(), s.cfg.LLMTimeout)
	defer lcancel()

	resp, err := s.client.Complete(lctx, llm.CompletionRequest{
		Model:     s.cfg.Model,
		System:    buildSummaryPrompt(prior),
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
		MaxTokens: s.cfg.MaxTokens,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("conversationId", conversationID).Msg("summary refresh failed")
		return
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return
	}
	if err := s.store.SetSummary(sctx, conversationID, summary); err != nil {
		s.log.Warn().Err(err).Str("conversationId", conversationID).Msg("summary save failed")
	}
}
