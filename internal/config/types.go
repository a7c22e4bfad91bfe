package config

// Config is the root configuration for voxcoach.
type Config struct {
	Server    ServerConfig    `yaml:"server,omitempty"`
	Providers ProvidersConfig `yaml:"providers,omitempty"`
	Call      CallConfig      `yaml:"call,omitempty"`
	Turn      TurnConfig      `yaml:"turn,omitempty"`
	Coach     CoachConfig     `yaml:"coach,omitempty"`
	Store     StoreConfig     `yaml:"store,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// ServerConfig controls the coach gateway HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port,omitempty"`
	Bind           string   `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string   `yaml:"customBindHost,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// ProvidersConfig groups all external AI collaborator settings.
type ProvidersConfig struct {
	LLM       LLMConfig       `yaml:"llm,omitempty"`
	STT       STTConfig       `yaml:"stt,omitempty"`
	TTS       TTSConfig       `yaml:"tts,omitempty"`
	Retrieval RetrievalConfig `yaml:"retrieval,omitempty"`
}

// LLMConfig configures the chat-completion provider.
type LLMConfig struct {
	BaseURL         string   `yaml:"baseUrl,omitempty"`
	APIKey          string   `yaml:"apiKey,omitempty"`
	Model           string   `yaml:"model,omitempty"`
	MaxTokens       int      `yaml:"maxTokens,omitempty"`
	Temperature     *float64 `yaml:"temperature,omitempty"`
	PresencePenalty *float64 `yaml:"presencePenalty,omitempty"`
	TimeoutMs       int      `yaml:"timeoutMs,omitempty"`
}

// STTConfig configures the speech-to-text provider.
type STTConfig struct {
	BaseURL   string `yaml:"baseUrl,omitempty"`
	APIKey    string `yaml:"apiKey,omitempty"`
	Model     string `yaml:"model,omitempty"`
	Language  string `yaml:"language,omitempty"`
	TimeoutMs int    `yaml:"timeoutMs,omitempty"`
}

// TTSConfig configures the text-to-speech provider.
type TTSConfig struct {
	BaseURL   string `yaml:"baseUrl,omitempty"`
	APIKey    string `yaml:"apiKey,omitempty"`
	Voice     string `yaml:"voice,omitempty"`
	Format    string `yaml:"format,omitempty"` // "mp3" | "wav"
	TimeoutMs int    `yaml:"timeoutMs,omitempty"`
}

// RetrievalConfig configures the vector-search knowledge base.
type RetrievalConfig struct {
	BaseURL    string `yaml:"baseUrl,omitempty"`
	APIKey     string `yaml:"apiKey,omitempty"`
	Collection string `yaml:"collection,omitempty"`
	TopK       int    `yaml:"topK,omitempty"`
	TimeoutMs  int    `yaml:"timeoutMs,omitempty"`
}

// CallConfig tunes the call-mode client: capture segmentation and playback.
// Millisecond knobs trade detection latency against CPU wake-ups.
type CallConfig struct {
	GatewayURL       string  `yaml:"gatewayUrl,omitempty"`
	TickMs           int     `yaml:"tickMs,omitempty"`
	SilenceThreshold float64 `yaml:"silenceThreshold,omitempty"` // normalized 0..1 energy
	MinRecordMs      int     `yaml:"minRecordMs,omitempty"`
	SilenceHoldMs    int     `yaml:"silenceHoldMs,omitempty"`
	MaxTurnMs        int     `yaml:"maxTurnMs,omitempty"`
	SpeechTimeoutMs  int     `yaml:"speechTimeoutMs,omitempty"`
	ReconnectDelayMs int     `yaml:"reconnectDelayMs,omitempty"`
	RingDelayMs      int     `yaml:"ringDelayMs,omitempty"`
	InputDevice      string  `yaml:"inputDevice,omitempty"`
	SampleRate       int     `yaml:"sampleRate,omitempty"`
}

// TurnConfig tunes the server-side duplicate-turn suppression.
type TurnConfig struct {
	DedupeWindowMs  int `yaml:"dedupeWindowMs,omitempty"`
	SweepIntervalMs int `yaml:"sweepIntervalMs,omitempty"`
}

// CoachConfig tunes the reply generation pipeline.
type CoachConfig struct {
	Persona       string `yaml:"persona,omitempty"` // extra persona text appended to the built-in prompt
	HistoryLimit  int    `yaml:"historyLimit,omitempty"`
	MaxReplyChars int    `yaml:"maxReplyChars,omitempty"`
	QueryMaxChars int    `yaml:"queryMaxChars,omitempty"` // retrieval query truncation
}

// StoreConfig controls conversation persistence.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"` // sqlite file, ":memory:" for tests
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	Format string `yaml:"format,omitempty"` // "console" | "json"
	File   string `yaml:"file,omitempty"`   // JSON log file, relative paths land under the logs dir
}
