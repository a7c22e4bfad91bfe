package cli

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxcoach/voxcoach/internal/coach"
	"github.com/voxcoach/voxcoach/internal/config"
	"github.com/voxcoach/voxcoach/internal/gateway"
	"github.com/voxcoach/voxcoach/internal/provider/llm"
	"github.com/voxcoach/voxcoach/internal/provider/retrieval"
	"github.com/voxcoach/voxcoach/internal/provider/tts"
	"github.com/voxcoach/voxcoach/internal/store"
	"github.com/voxcoach/voxcoach/internal/turnguard"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the coach gateway server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}
			if err := validateConfig(&cfg); err != nil {
				return err
			}
			if err := paths.EnsureDirs(); err != nil {
				return err
			}
			logClose, err := openLogger(cfg.Logging)
			if err != nil {
				return err
			}
			if logClose != nil {
				defer logClose.Close()
			}

			svc, cleanup, err := buildCoachService(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := gateway.New(cfg.Server, svc, log)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}

// buildCoachService assembles the reply pipeline from config. The cleanup
// closes the store and the dedupe registry.
func buildCoachService(cfg config.Config) (*coach.Service, func(), error) {
	client := llm.NewOpenAIClient(
		cfg.Providers.LLM.BaseURL,
		cfg.Providers.LLM.APIKey,
		cfg.Providers.LLM.Model,
		msDur(cfg.Providers.LLM.TimeoutMs),
	)

	var speech tts.Synthesizer
	if cfg.Providers.TTS.BaseURL != "" {
		speech = tts.NewHTTPSynthesizer(
			cfg.Providers.TTS.BaseURL,
			cfg.Providers.TTS.APIKey,
			cfg.Providers.TTS.Voice,
			cfg.Providers.TTS.Format,
			msDur(cfg.Providers.TTS.TimeoutMs),
		)
	} else {
		log.Warn().Msg("no TTS endpoint configured, replies will be text-only")
	}

	var search retrieval.Searcher
	if cfg.Providers.Retrieval.BaseURL != "" {
		search = retrieval.NewHTTPSearcher(
			cfg.Providers.Retrieval.BaseURL,
			cfg.Providers.Retrieval.APIKey,
			cfg.Providers.Retrieval.Collection,
			msDur(cfg.Providers.Retrieval.TimeoutMs),
		)
	}

	storePath := cfg.Store.Path
	if storePath == "" {
		storePath = filepath.Join(paths.Data, "voxcoach.db")
	}
	db, err := store.Open(storePath, log)
	if err != nil {
		return nil, nil, err
	}
	turns := store.NewSQLiteTurnStore(db)

	registry := newTurnRegistry(cfg)

	svc := coach.NewService(
		coach.ServiceConfig{
			Persona:          cfg.Coach.Persona,
			HistoryLimit:     cfg.Coach.HistoryLimit,
			MaxReplyChars:    cfg.Coach.MaxReplyChars,
			QueryMaxChars:    cfg.Coach.QueryMaxChars,
			Model:            cfg.Providers.LLM.Model,
			MaxTokens:        cfg.Providers.LLM.MaxTokens,
			Temperature:      cfg.Providers.LLM.Temperature,
			PresencePenalty:  cfg.Providers.LLM.PresencePenalty,
			TopK:             cfg.Providers.Retrieval.TopK,
			LLMTimeout:       msDur(cfg.Providers.LLM.TimeoutMs),
			RetrievalTimeout: msDur(cfg.Providers.Retrieval.TimeoutMs),
			TTSTimeout:       msDur(cfg.Providers.TTS.TimeoutMs),
		},
		client, speech, search, turns, registry, log,
	)

	cleanup := func() {
		registry.Close()
		db.Close()
	}
	return svc, cleanup, nil
}

func newTurnRegistry(cfg config.Config) *turnguard.Registry {
	return turnguard.NewRegistry(
		msDur(cfg.Turn.DedupeWindowMs),
		msDur(cfg.Turn.SweepIntervalMs),
		log,
	)
}

func msDur(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
