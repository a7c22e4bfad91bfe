package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/voxcoach/voxcoach/internal/audio"
	"github.com/voxcoach/voxcoach/internal/call"
	"github.com/voxcoach/voxcoach/internal/config"
	"github.com/voxcoach/voxcoach/internal/domain"
	"github.com/voxcoach/voxcoach/internal/provider/stt"
)

func newCallCmd() *cobra.Command {
	var (
		gatewayURL     string
		conversationID string
	)

	cmd := &cobra.Command{
		Use:   "call",
		Short: "Start a voice coaching call from this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if gatewayURL != "" {
				cfg.Call.GatewayURL = gatewayURL
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

			controller, err := buildController(cfg, conversationID)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go readCallCommands(ctx, controller)

			fmt.Println("calling... (m mutes, q hangs up)")
			return controller.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&gatewayURL, "gateway", "", "override coach gateway URL")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "continue an existing conversation")

	return cmd
}

// buildController assembles the call client from config.
func buildController(cfg config.Config, conversationID string) (*call.Controller, error) {
	deviceID, err := loadDeviceID()
	if err != nil {
		return nil, err
	}

	session := domain.CallSession{
		CallID:         uuid.New().String(),
		DeviceID:       deviceID,
		ConversationID: conversationID,
	}

	var transcriber stt.Transcriber
	if stt.IsWebSocketURL(cfg.Providers.STT.BaseURL) {
		transcriber = stt.NewWSTranscriber(
			cfg.Providers.STT.BaseURL,
			cfg.Providers.STT.APIKey,
			cfg.Providers.STT.Model,
			cfg.Providers.STT.Language,
			msDur(cfg.Providers.STT.TimeoutMs),
		)
	} else {
		transcriber = stt.NewHTTPTranscriber(
			cfg.Providers.STT.BaseURL,
			cfg.Providers.STT.APIKey,
			cfg.Providers.STT.Model,
			cfg.Providers.STT.Language,
			msDur(cfg.Providers.STT.TimeoutMs),
		)
	}

	client := call.NewHTTPCoachClient(cfg.Call.GatewayURL, 0)
	player := call.NewFFPlayPlayer("", paths.Sounds)
	playback := call.NewPlayback(player, log)

	controllerCfg := call.ControllerConfig{
		Tick:           msDur(cfg.Call.TickMs),
		RingDelay:      msDur(cfg.Call.RingDelayMs),
		ReconnectDelay: msDur(cfg.Call.ReconnectDelayMs),
		SpeechTimeout:  msDur(cfg.Call.SpeechTimeoutMs),
		Capture: audio.CaptureConfig{
			Policy: audio.Policy{
				SilenceThreshold: cfg.Call.SilenceThreshold,
				MinRecord:        msDur(cfg.Call.MinRecordMs),
				SilenceHold:      msDur(cfg.Call.SilenceHoldMs),
				MaxTurn:          msDur(cfg.Call.MaxTurnMs),
			},
			Tick:     msDur(cfg.Call.TickMs),
			MimeType: "audio/pcm",
		},
		Mic: audio.SourceConfig{
			SampleRate:  cfg.Call.SampleRate,
			InputDevice: cfg.Call.InputDevice,
		},
	}

	return call.NewController(controllerCfg, session, audio.FFmpegOpener{}, transcriber, client, playback, log), nil
}

// loadDeviceID returns a stable per-machine identifier, creating one on
// first use. It feeds the gateway's dedupe key.
func loadDeviceID() (string, error) {
	path := filepath.Join(paths.Base, "device_id")
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	id := uuid.New().String()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("writing device id: %w", err)
	}
	return id, nil
}

// readCallCommands handles the interactive mute/hangup keys.
func readCallCommands(ctx context.Context, controller *call.Controller) {
	scanner := bufio.NewScanner(os.Stdin)
	muted := false
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "m", "mute":
			muted = !muted
			controller.Mute(muted)
			if muted {
				fmt.Println("muted")
			} else {
				fmt.Println("unmuted")
			}
		case "q", "quit", "hangup":
			controller.Hangup()
			return
		}
	}
}
