// main package for the echoverse-service
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/echoverse-service/internal/blobstore"
	"github.com/book-expert/echoverse-service/internal/config"
	"github.com/book-expert/echoverse-service/internal/core"
	"github.com/book-expert/echoverse-service/internal/iam"
	"github.com/book-expert/echoverse-service/internal/narrator"
	"github.com/book-expert/echoverse-service/internal/rewrite"
	"github.com/book-expert/echoverse-service/internal/session"
	"github.com/book-expert/echoverse-service/internal/synthesis"
	"github.com/book-expert/echoverse-service/internal/web"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
	pruneInterval     = time.Hour

	ephemeralSecretBytes = 32
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "echoverse-bootstrap.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create bootstrap logger: %w", err)
	}

	return log, nil
}

// sessionSecret returns the configured cookie-signing secret, or a random
// process-lifetime one when none is configured. An ephemeral secret means
// sessions do not survive a restart, which matches the in-memory stores.
func sessionSecret(cfg *config.Config, log *logger.Logger) ([]byte, error) {
	if secret := cfg.SessionSecret(); secret != "" {
		return []byte(secret), nil
	}

	secret := make([]byte, ephemeralSecretBytes)

	_, err := rand.Read(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session secret: %w", err)
	}

	log.Warn("No session secret configured (%s); using an ephemeral one", cfg.Server.SessionSecretEnv)

	return secret, nil
}

// buildBlobStore selects the audio backing: a JetStream object store when
// NATS is configured, otherwise process memory.
func buildBlobStore(cfg *config.Config, log *logger.Logger) (core.BlobStore, func(), error) {
	if cfg.NATS.URL == "" {
		log.Info("Audio store: in-memory")

		return blobstore.NewMemory(), func() {}, nil
	}

	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to open JetStream context: %w", err)
	}

	store, err := blobstore.NewNATS(jetstreamContext, cfg.NATS.AudioBucket)
	if err != nil {
		natsConnection.Close()

		return nil, nil, err
	}

	log.Info("Audio store: NATS bucket %s at %s", cfg.NATS.AudioBucket, cfg.NATS.URL)

	return store, natsConnection.Close, nil
}

// pruneSessions drops idle sessions on a fixed interval and releases the
// audio their histories referenced.
func pruneSessions(ctx context.Context, sessions *session.Manager, blobs core.BlobStore, log *logger.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			keys := sessions.Prune()
			for _, key := range keys {
				err := blobs.Delete(ctx, key)
				if err != nil {
					log.Warn("Failed to delete expired audio %s: %v", key, err)
				}
			}

			if len(keys) > 0 {
				log.Info("Pruned expired sessions; released %d audio objects", len(keys))
			}
		}
	}
}

func run() error {
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secret, err := sessionSecret(cfg, finalLog)
	if err != nil {
		return err
	}

	blobs, closeBlobs, err := buildBlobStore(cfg, finalLog)
	if err != nil {
		return err
	}
	defer closeBlobs()

	tokens := iam.NewTokenCache(
		cfg.TTSAPIKey(),
		cfg.TTS.IAMTokenURL,
		time.Duration(cfg.TTS.IAMTimeoutSeconds)*time.Second,
		finalLog,
	)

	rewriter := rewrite.New(
		cfg.RewriteToken(),
		cfg.Rewrite.BaseURL,
		cfg.Rewrite.ModelID,
		time.Duration(cfg.Rewrite.TimeoutSeconds)*time.Second,
		finalLog,
	)

	synthesizer := synthesis.New(
		cfg.TTS.ServiceURL,
		tokens,
		time.Duration(cfg.TTS.TimeoutSeconds)*time.Second,
		finalLog,
	)

	submitter := narrator.New(rewriter, synthesizer, blobs, cfg.Server.MaxTextLength, finalLog)

	sessions := session.NewManager(
		secret,
		time.Duration(cfg.Server.SessionTTLHours)*time.Hour,
	)

	handler, err := web.New(sessions, submitter, blobs, finalLog)
	if err != nil {
		return err
	}

	go pruneSessions(ctx, sessions, blobs, finalLog)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)

	go func() {
		finalLog.System("EchoVerse listening on %s (model: %s)", server.Addr, cfg.Rewrite.ModelID)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}

		return nil
	case <-ctx.Done():
	}

	finalLog.System("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = server.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
