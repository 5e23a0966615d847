package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chadiek/call-relay/internal/agent"
	"github.com/chadiek/call-relay/internal/calllog"
	"github.com/chadiek/call-relay/internal/config"
	"github.com/chadiek/call-relay/internal/httpserver"
	"github.com/chadiek/call-relay/internal/llm"
	"github.com/chadiek/call-relay/internal/persona"
	"github.com/chadiek/call-relay/internal/postcall"
	"github.com/chadiek/call-relay/internal/relay"
	"github.com/chadiek/call-relay/internal/storage"
	"github.com/chadiek/call-relay/internal/transcript"
	"github.com/chadiek/call-relay/internal/twilio"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	personas := persona.NewFileProvider(cfg.PersonasPath)

	var calls calllog.Store
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceRoleKey != "" {
		store, err := calllog.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey)
		if err != nil {
			log.Fatalf("supabase call store: %v", err)
		}
		calls = store
	} else {
		log.Println("no Supabase configured, keeping call records in memory")
		calls = calllog.NewMemoryStore()
	}

	twilioSvc := twilio.New(twilio.Config{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		SMSFrom:    cfg.SMSFromNumber,
	})

	pipeline := &postcall.Pipeline{
		Store:          calls,
		Downloader:     twilioSvc,
		Transcriber:    transcript.NewWhisperClient(cfg.OpenAIAPIKey, ""),
		Extractor:      llm.NewExtractClient(cfg.OpenAIAPIKey, ""),
		Messenger:      twilioSvc,
		PaymentBaseURL: cfg.PaymentBaseURL,
	}
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceRoleKey != "" {
		uploader, err := storage.NewSupabase(storage.Config{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseServiceRoleKey,
			Bucket:         cfg.SupabaseBucket,
		})
		if err != nil {
			log.Fatalf("supabase storage: %v", err)
		}
		pipeline.Uploader = uploader
	}

	dialAgent := func(callID string, p persona.Persona) (relay.AgentConn, error) {
		sess, err := agent.Dial(callID, agent.Config{APIKey: cfg.OpenAIAPIKey, Greeting: cfg.Greeting}, p)
		if err != nil {
			return nil, err
		}
		return sess, nil
	}

	srv := httpserver.New(httpserver.Deps{
		Config:    cfg,
		Personas:  personas,
		Calls:     calls,
		Recorder:  twilioSvc,
		Postcall:  pipeline,
		Messenger: twilioSvc,
		Verifier:  twilioSvc,
		DialAgent: dialAgent,
		OnCallEnd: func(r relay.EndReport) {
			log.Printf("[%s] call finished after %s", r.CallSID, r.Duration.Round(time.Second))
		},
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
