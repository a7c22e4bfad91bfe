package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "server.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Server.Port),
		})
	}

	validBinds := []string{"loopback", "lan", "custom"}
	if cfg.Server.Bind != "" && !slices.Contains(validBinds, cfg.Server.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "server.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Server.Bind),
		})
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validLogFormats := []string{"", "console", "json"}
	if !slices.Contains(validLogFormats, cfg.Logging.Format) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.format",
			Message: fmt.Sprintf("must be console or json, got %q", cfg.Logging.Format),
		})
	}

	// Capture segmentation sanity. The silence hold must be able to elapse
	// inside a turn, and the talk floor must sit below the ceiling.
	if cfg.Call.SilenceThreshold < 0 || cfg.Call.SilenceThreshold > 1 {
		issues = append(issues, ValidationIssue{
			Path:    "call.silenceThreshold",
			Message: fmt.Sprintf("must be within 0..1, got %g", cfg.Call.SilenceThreshold),
		})
	}
	if cfg.Call.MinRecordMs < 0 || cfg.Call.SilenceHoldMs < 0 || cfg.Call.MaxTurnMs < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "call",
			Message: "segmentation durations must not be negative",
		})
	}
	if cfg.Call.MaxTurnMs > 0 && cfg.Call.MinRecordMs >= cfg.Call.MaxTurnMs {
		issues = append(issues, ValidationIssue{
			Path:    "call.minRecordMs",
			Message: fmt.Sprintf("talk floor %dms must be below the turn ceiling %dms", cfg.Call.MinRecordMs, cfg.Call.MaxTurnMs),
		})
	}
	if cfg.Call.TickMs < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "call.tickMs",
			Message: "tick interval must not be negative",
		})
	}

	if cfg.Turn.DedupeWindowMs < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "turn.dedupeWindowMs",
			Message: "dedupe window must not be negative",
		})
	}

	validFormats := []string{"", "mp3", "wav"}
	if !slices.Contains(validFormats, cfg.Providers.TTS.Format) {
		issues = append(issues, ValidationIssue{
			Path:    "providers.tts.format",
			Message: fmt.Sprintf("must be mp3 or wav, got %q", cfg.Providers.TTS.Format),
		})
	}

	if cfg.Providers.Retrieval.TopK < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "providers.retrieval.topK",
			Message: "topK must not be negative",
		})
	}

	return issues
}
