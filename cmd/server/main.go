// Command server runs the telephony media-streaming WebSocket endpoint
// described in spec §4.6, §6: it bridges an inbound call's audio to
// per-call STT/LLM/TTS streaming clients via pkg/session and pkg/manager.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fernwave-ai/voicebridge/internal/config"
	"github.com/fernwave-ai/voicebridge/internal/logging"
	"github.com/fernwave-ai/voicebridge/pkg/manager"
	"github.com/fernwave-ai/voicebridge/pkg/providers/llm"
	"github.com/fernwave-ai/voicebridge/pkg/providers/stt"
	"github.com/fernwave-ai/voicebridge/pkg/providers/tts"
	"github.com/fernwave-ai/voicebridge/pkg/session"
	"github.com/fernwave-ai/voicebridge/pkg/telephony"
)

var (
	flagTo           string
	flagFrom         string
	flagPurpose      string
	flagSystemPrompt string
	flagVoice        string
	flagServerOnly   bool
	flagHost         string
	flagPort         int
	flagDebug        bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "voicebridge",
		Short: "Real-time telephony/LLM voice orchestrator",
	}
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&flagHost, "host", "", "override server host")
	root.PersistentFlags().IntVar(&flagPort, "port", 0, "override server port")

	root.AddCommand(newServeCmd())
	root.AddCommand(newCallCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the telephony WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	return cmd
}

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Place an outbound call and serve its media stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&flagTo, "to", "", "destination phone number, E.164 (required)")
	cmd.Flags().StringVar(&flagFrom, "from", "", "caller id override")
	cmd.Flags().StringVar(&flagPurpose, "purpose", "", "call purpose, used for greeting/system-prompt bootstrap")
	cmd.Flags().StringVar(&flagSystemPrompt, "system-prompt", "", "override the generated system prompt")
	cmd.Flags().StringVar(&flagVoice, "voice", "", "override the configured TTS voice/model")
	cmd.Flags().BoolVar(&flagServerOnly, "server-only", false, "start the server without placing a call")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// serveFunc is runServe by default; overridden in tests so runCall's
// branch logic can be exercised without binding a real listener.
var serveFunc = runServe

// outboundCaller is the telephony.OutboundCaller this build ships. It is
// always nil: placing a call requires a concrete telephony SDK client
// (Telnyx/Twilio) that a host embedding this module must supply.
var outboundCaller telephony.OutboundCaller

// runCall implements the CLI contract of spec §6. Placing outbound calls
// requires a telephony SDK integration (dialing, answering-machine
// detection, webhook-driven streaming start) that this module exposes only
// as the pkg/telephony.OutboundCaller interface — an external collaborator
// is expected to supply the concrete implementation. --server-only runs the
// same server this module does implement.
func runCall(ctx context.Context) error {
	if flagServerOnly {
		return serveFunc(ctx)
	}
	if outboundCaller == nil {
		return fmt.Errorf("outbound calling is an external collaborator, not implemented by this module (use --server-only to run the media server standalone)")
	}
	_, err := outboundCaller.Dial(telephony.DialOptions{
		To:   flagTo,
		From: flagFrom,
		AMD:  telephony.DefaultAMDConfig(),
	})
	return err
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flagHost != "" {
		cfg.Server.Host = flagHost
	}
	if flagPort != 0 {
		cfg.Server.Port = flagPort
	}
	if flagDebug {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
	if flagVoice != "" {
		cfg.TTS.Model = flagVoice
	}

	log := logging.New(os.Stdout, cfg.LogLevel, cfg.Debug)
	log.Info("starting voicebridge server", "host", cfg.Server.Host, "port", cfg.Server.Port)

	factory := &providerFactory{cfg: cfg}

	mgr := manager.New(factory, log)

	purpose := flagPurpose
	completer := newCompleter(cfg.Bootstrap)
	bootstrap := llm.RunBootstrap(ctx, completer, purpose)
	if flagSystemPrompt != "" {
		bootstrap.SystemPrompt = flagSystemPrompt
	}

	endpoint := telephony.NewEndpoint(mgr, bootstrap, log)
	webhook := telephony.NewWebhookHandler(nil, log)

	mux := http.NewServeMux()
	mux.Handle("/telephony", endpoint)
	mux.Handle("/webhook", webhook)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"healthy"}`))
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // media streams are long-lived
		IdleTimeout:  120 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

// newCompleter selects the one-shot Completer backend for the greeting
// bootstrap (spec §4.3) per cfg.Bootstrap.Provider. Returns nil when no
// provider is configured, which makes RunBootstrap fall back to its
// built-in default system prompt and greeting.
func newCompleter(cfg config.Bootstrap) llm.Completer {
	switch cfg.Provider {
	case "anthropic":
		return llm.NewAnthropicLLM(cfg.APIKey, cfg.Model)
	case "openai":
		return llm.NewOpenAILLM(cfg.APIKey, cfg.Model)
	case "google":
		return llm.NewGoogleLLM(cfg.APIKey, cfg.Model)
	default:
		return nil
	}
}

// providerFactory builds fresh STT/TTS/LLM streaming clients for each new
// call, from the process-wide configuration (spec §6).
type providerFactory struct {
	cfg config.Config
}

func (f *providerFactory) NewSTT() session.STTClient {
	return stt.New(stt.Config{
		APIKey:         f.cfg.STT.APIKey,
		Model:          f.cfg.STT.Model,
		EndpointingMS:  f.cfg.STT.EndpointingMS,
		UtteranceEndMS: f.cfg.STT.UtteranceEndMS,
	})
}

func (f *providerFactory) NewTTS() session.TTSClient {
	return tts.New(tts.Config{
		APIKey: f.cfg.TTS.APIKey,
		Model:  f.cfg.TTS.Model,
	})
}

func (f *providerFactory) NewLLM() session.LLMClient {
	return llm.New(llm.Config{
		APIKey:      f.cfg.LLM.APIKey,
		Region:      f.cfg.LLM.Region,
		ModelID:     f.cfg.LLM.ModelID,
		MaxTokens:   f.cfg.LLM.MaxTokens,
		Temperature: f.cfg.LLM.Temperature,
	})
}
