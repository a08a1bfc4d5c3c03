package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quietwire/mercury/internal/api"
	"github.com/quietwire/mercury/internal/attachments"
	"github.com/quietwire/mercury/internal/cipher"
	"github.com/quietwire/mercury/internal/config"
	"github.com/quietwire/mercury/internal/db"
	"github.com/quietwire/mercury/internal/dispatch"
	"github.com/quietwire/mercury/internal/jobs"
	"github.com/quietwire/mercury/internal/metrics"
	"github.com/quietwire/mercury/internal/models"
	"github.com/quietwire/mercury/internal/notify"
	"github.com/quietwire/mercury/internal/transport"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseConnection(pool)

	log.Printf("Successfully connected to database")

	server, runner := NewServer(cfg, pool)
	defer runner.Shutdown()

	if err := runner.ResumePending(ctx); err != nil {
		log.Fatalf("Failed to resume pending jobs: %v", err)
	}

	address := ":" + cfg.Port
	log.Printf("Mercury inbound server starting on %s (environment: %s)", address, cfg.Environment)

	if err := http.ListenAndServe(address, server); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// NewServer creates the HTTP handler and the job runner for the Mercury
// inbound server.
func NewServer(cfg *config.Config, dbPool *pgxpool.Pool) (http.Handler, *jobs.Runner) {
	metrics.Register()

	box, err := cipher.NewBox(cfg.EncryptionKeyBase64)
	if err != nil {
		log.Fatalf("Failed to create envelope cipher: %v", err)
	}

	store := db.NewStore(dbPool)
	account := db.NewAccount(store, cfg.IdentityKey)
	sender := transport.NewSender(cfg.PushServiceURL)

	registry := jobs.NewRegistry()
	runner := jobs.NewRunner(store, registry, cfg.MaxWorkers)

	hub := notify.NewHub(10)
	typing := dispatch.NewTypingRepository(hub.TypingChanged)

	attachmentEnv := &attachments.Env{
		Store:      store,
		Downloader: transport.NewDownloader(),
		Policy:     autoDownloadPolicy{permitted: cfg.AutoDownload},
		TempDir:    cfg.TempDir,
	}

	dispatcher := dispatch.New(dispatch.Deps{
		Store:         store,
		Cipher:        box,
		Runner:        runner,
		Notifier:      hub,
		Prefs:         preferences{cfg: cfg},
		Account:       account,
		Sender:        sender,
		AttachmentEnv: attachmentEnv,
		Typing:        typing,
	})

	registry.Register(attachments.JobKey, func(data jobs.Data) (jobs.Job, error) {
		return attachments.JobFromData(attachmentEnv, data)
	})
	registry.Register(dispatch.DispatchJobKey, func(data jobs.Data) (jobs.Job, error) {
		return dispatch.DispatchJobFromData(dispatcher, data)
	})
	registry.Register(dispatch.ReceiptJobKey, func(data jobs.Data) (jobs.Job, error) {
		return dispatch.ReceiptJobFromData(sender, data)
	})
	registry.Register(dispatch.GroupInfoRequestJobKey, func(data jobs.Data) (jobs.Job, error) {
		return dispatch.GroupInfoRequestJobFromData(sender, data)
	})

	envelopeHandler := api.NewEnvelopeHandler(store, dispatcher, runner)
	attachmentsHandler := api.NewAttachmentsHandler(store, attachmentEnv, runner)
	wsHandler := api.NewWebSocketHandler(hub)

	mux := http.NewServeMux()

	mux.HandleFunc("/", handleRoot)

	mux.Handle("/api/v1/envelopes", postOnly(envelopeHandler.Ingest))
	mux.Handle("/api/v1/envelopes/replay", postOnly(envelopeHandler.Replay))
	mux.Handle("/api/v1/attachments/retry", postOnly(attachmentsHandler.Retry))
	mux.Handle("/api/v1/attachments/content", postOnly(attachmentsHandler.Content))
	mux.Handle("/api/v1/ws", http.HandlerFunc(wsHandler.Handle))
	mux.Handle("/metrics", promhttp.Handler())

	return mux, runner
}

func postOnly(handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	})
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Mercury inbound API is running")
}

// autoDownloadPolicy permits or defers automatic attachment downloads
// based on server configuration.
type autoDownloadPolicy struct {
	permitted bool
}

func (p autoDownloadPolicy) AutoDownloadPermitted(_ *models.Attachment) bool {
	return p.permitted
}

// preferences exposes user-facing feature toggles from configuration.
type preferences struct {
	cfg *config.Config
}

func (p preferences) ReadReceiptsEnabled() bool { return p.cfg.ReadReceipts }

func (p preferences) TypingIndicatorsEnabled() bool { return p.cfg.TypingIndicators }
