package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/demobites/voice-order/internal/call"
	"github.com/demobites/voice-order/internal/config"
	"github.com/demobites/voice-order/internal/dialog"
	"github.com/demobites/voice-order/internal/httpserver"
	"github.com/demobites/voice-order/internal/partner"
	"github.com/demobites/voice-order/internal/recording"
	"github.com/demobites/voice-order/internal/resolver"
	"github.com/demobites/voice-order/internal/store"
	"github.com/demobites/voice-order/internal/stream"
	"github.com/demobites/voice-order/internal/transcribe"
	"github.com/demobites/voice-order/internal/tts"
	"github.com/demobites/voice-order/internal/vad"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	archive, err := store.New(store.Config{
		URL:            cfg.SupabaseURL,
		ServiceRoleKey: cfg.SupabaseServiceKey,
		Bucket:         cfg.SupabaseBucket,
	})
	if err != nil {
		log.Fatalf("supabase client: %v", err)
	}

	whisper := transcribe.NewWhisperClient(cfg.OpenAIKey, cfg.WhisperModel)
	intents := resolver.NewClient(cfg.OpenAIKey, cfg.ResolverModel, cfg.ResolverTimeout())
	orders := partner.NewClient(cfg.PartnerBaseURL, cfg.PartnerStoreID, cfg.PartnerToken)
	engine := dialog.NewEngine(intents, orders, archive)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	synth, err := tts.NewPollySynthesizer(ctx, cfg.AWSRegion, cfg.PollyVoice, cfg.PollyEngine)
	cancel()
	if err != nil {
		log.Fatalf("polly synthesizer: %v", err)
	}

	callCfg := call.DefaultConfig()
	callCfg.ActivityThreshold = cfg.ActivityThreshold
	callCfg.BargeCooldown = cfg.BargeCooldown()
	callCfg.CatchUpFrames = cfg.CatchUpFrames
	callCfg.MinUtteranceBytes = cfg.MinUtteranceMS * 8
	callCfg.VAD = vad.Config{
		FrameDuration: callCfg.FrameDuration,
		StartFrames:   cfg.StartFrames,
		EndFrames:     cfg.EndFrames,
		MinUtterance:  cfg.MinUtterance(),
		MaxUtterance:  cfg.MaxUtterance(),
	}
	controller := call.NewController(callCfg, whisper, engine, synth)

	// the webhook TwiML greets the caller before the stream connects, so
	// the stream itself starts silent and listening
	streamHandler := stream.NewHandler(controller, "")

	recorder := recording.New(recording.Config{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		Enabled:    cfg.RecordCalls,
	}, archive)

	srv := httpserver.New(cfg, streamHandler, recorder)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
