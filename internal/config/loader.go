package config

import (
	"os"
	"regexp"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigError describes a problem loading or parsing configuration.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so API keys can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Providers.LLM.APIKey = expandEnvVars(cfg.Providers.LLM.APIKey)
	cfg.Providers.STT.APIKey = expandEnvVars(cfg.Providers.STT.APIKey)
	cfg.Providers.TTS.APIKey = expandEnvVars(cfg.Providers.TTS.APIKey)
	cfg.Providers.Retrieval.APIKey = expandEnvVars(cfg.Providers.Retrieval.APIKey)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only. A .env file next
// to the working directory is honored before env overrides are read.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// applyDefaults fills zero-valued knobs with their design values.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8790
	}
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = "loopback"
	}

	if cfg.Call.GatewayURL == "" {
		cfg.Call.GatewayURL = "http://127.0.0.1:8790"
	}
	if cfg.Call.TickMs == 0 {
		cfg.Call.TickMs = 70
	}
	if cfg.Call.SilenceThreshold == 0 {
		cfg.Call.SilenceThreshold = 0.02
	}
	if cfg.Call.MinRecordMs == 0 {
		cfg.Call.MinRecordMs = 900
	}
	if cfg.Call.SilenceHoldMs == 0 {
		cfg.Call.SilenceHoldMs = 1100
	}
	if cfg.Call.MaxTurnMs == 0 {
		cfg.Call.MaxTurnMs = 30000
	}
	if cfg.Call.SpeechTimeoutMs == 0 {
		cfg.Call.SpeechTimeoutMs = 35000
	}
	if cfg.Call.ReconnectDelayMs == 0 {
		cfg.Call.ReconnectDelayMs = 800
	}
	if cfg.Call.RingDelayMs == 0 {
		cfg.Call.RingDelayMs = 1200
	}
	if cfg.Call.SampleRate == 0 {
		cfg.Call.SampleRate = 16000
	}

	if cfg.Turn.DedupeWindowMs == 0 {
		cfg.Turn.DedupeWindowMs = 2500
	}
	if cfg.Turn.SweepIntervalMs == 0 {
		cfg.Turn.SweepIntervalMs = cfg.Turn.DedupeWindowMs * 10
	}

	if cfg.Coach.HistoryLimit == 0 {
		cfg.Coach.HistoryLimit = 12
	}
	if cfg.Coach.MaxReplyChars == 0 {
		cfg.Coach.MaxReplyChars = 900
	}
	if cfg.Coach.QueryMaxChars == 0 {
		cfg.Coach.QueryMaxChars = 240
	}

	if cfg.Providers.LLM.MaxTokens == 0 {
		cfg.Providers.LLM.MaxTokens = 512
	}
	if cfg.Providers.LLM.TimeoutMs == 0 {
		cfg.Providers.LLM.TimeoutMs = 30000
	}
	if cfg.Providers.STT.TimeoutMs == 0 {
		cfg.Providers.STT.TimeoutMs = 20000
	}
	if cfg.Providers.TTS.TimeoutMs == 0 {
		cfg.Providers.TTS.TimeoutMs = 20000
	}
	if cfg.Providers.TTS.Format == "" {
		cfg.Providers.TTS.Format = "mp3"
	}
	if cfg.Providers.Retrieval.TopK == 0 {
		cfg.Providers.Retrieval.TopK = 4
	}
	if cfg.Providers.Retrieval.TimeoutMs == 0 {
		cfg.Providers.Retrieval.TimeoutMs = 8000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// applyEnvOverrides reads VOXCOACH_* environment variables into cfg.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOXCOACH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("VOXCOACH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VOXCOACH_GATEWAY_URL"); v != "" {
		cfg.Call.GatewayURL = v
	}
	if v := os.Getenv("VOXCOACH_LLM_API_KEY"); v != "" {
		cfg.Providers.LLM.APIKey = v
	}
	if v := os.Getenv("VOXCOACH_STT_API_KEY"); v != "" {
		cfg.Providers.STT.APIKey = v
	}
	if v := os.Getenv("VOXCOACH_TTS_API_KEY"); v != "" {
		cfg.Providers.TTS.APIKey = v
	}
	if v := os.Getenv("VOXCOACH_RETRIEVAL_API_KEY"); v != "" {
		cfg.Providers.Retrieval.APIKey = v
	}
	if v := os.Getenv("VOXCOACH_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
}
