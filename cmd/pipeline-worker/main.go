package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sbbp/pipeline/internal/anthropic"
	"github.com/sbbp/pipeline/internal/dbosruntime"
	"github.com/sbbp/pipeline/internal/deepgram"
	"github.com/sbbp/pipeline/internal/extcmd"
	"github.com/sbbp/pipeline/internal/handlers"
	"github.com/sbbp/pipeline/internal/metrics"
	"github.com/sbbp/pipeline/internal/storage"
	"github.com/sbbp/pipeline/internal/store"
	"github.com/sbbp/pipeline/internal/workflows"
)

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	httpAddr := os.Getenv("WORKER_HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8081"
	}

	// Videos table and DBOS system state can live in the same database;
	// DBOS_SYSTEM_DATABASE_URL overrides for split deployments.
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatalf("DATABASE_URL is required")
	}
	dbosURL := os.Getenv("DBOS_SYSTEM_DATABASE_URL")
	if dbosURL == "" {
		dbosURL = dbURL
	}

	videoStore, err := store.NewPostgresStore(dbURL)
	if err != nil {
		log.Fatalf("Failed to initialize video store: %v", err)
	}
	defer videoStore.Close()
	log.Printf("✓ Video store initialized")

	appStorage, err := buildStorage()
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	if deepgramKey == "" {
		log.Fatalf("DEEPGRAM_API_KEY is required")
	}
	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	if anthropicKey == "" {
		log.Fatalf("ANTHROPIC_API_KEY is required")
	}

	dbosRuntime, err := dbosruntime.NewRuntime(context.Background(), dbosruntime.Config{
		DatabaseURL: dbosURL,
		AppName:     "pipeline-worker",
	})
	if err != nil {
		log.Fatalf("Failed to initialize DBOS: %v", err)
	}

	m := metrics.New()
	runner := workflows.NewRunner(dbosRuntime, m)

	cmdRunner := extcmd.ExecRunner{}

	download := workflows.NewDownloadStage(videoStore, appStorage, cmdRunner)
	if bin := os.Getenv("YTDLP_BIN"); bin != "" {
		download.Downloader = bin
	}

	extract := workflows.NewExtractStage(videoStore, appStorage, cmdRunner)
	if bin := os.Getenv("FFMPEG_BIN"); bin != "" {
		extract.Transcoder = bin
	}
	if v := os.Getenv("FRAME_INTERVAL"); v != "" {
		interval, err := strconv.Atoi(v)
		if err != nil || interval < 1 {
			log.Fatalf("Invalid FRAME_INTERVAL %q", v)
		}
		extract.Interval = interval
	}

	analyze := workflows.NewAnalyzeStage(videoStore, appStorage)
	analyze.Metrics = m
	if v := os.Getenv("SSIM_THRESHOLD"); v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil || threshold < 0 || threshold > 1 {
			log.Fatalf("Invalid SSIM_THRESHOLD %q", v)
		}
		analyze.Threshold = threshold
	}

	transcribe := workflows.NewTranscribeStage(videoStore, appStorage, deepgram.NewClient(deepgramKey))
	summarize := workflows.NewSummarizeStage(videoStore, anthropic.NewClient(anthropicKey))

	for _, stage := range []workflows.Stage{download, extract, analyze, transcribe, summarize} {
		runner.Register(stage)
		log.Printf("✓ Registered stage: %s (queue concurrency %d)", stage.Name(), dbosRuntime.Concurrency(stage.Name()))
	}

	// Launch DBOS (must be done after stage registration)
	if err := dbosRuntime.Launch(); err != nil {
		log.Fatalf("Failed to launch DBOS: %v", err)
	}
	defer dbosRuntime.Shutdown(10 * time.Second)
	log.Printf("✓ DBOS runtime initialized")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/metrics", m.Handler())
	handlers.NewVideoHandler(videoStore, runner).Register(mux)
	log.Printf("✓ Registered endpoints")

	server := &http.Server{
		Addr:    httpAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("Pipeline worker starting on %s", httpAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// buildStorage wires the uploads and images backends. Both default to
// local filesystem directories; unset directories fall back to an
// in-process store for development.
func buildStorage() (*storage.AppStorage, error) {
	uploads, err := buildBackend(os.Getenv("STORAGE_UPLOADS_DIR"), "uploads")
	if err != nil {
		return nil, err
	}
	images, err := buildBackend(os.Getenv("STORAGE_IMAGES_DIR"), "images")
	if err != nil {
		return nil, err
	}
	return &storage.AppStorage{Uploads: uploads, Images: images}, nil
}

func buildBackend(dir, name string) (storage.Backend, error) {
	if dir == "" {
		log.Printf("Using in-memory %s storage (development)", name)
		return storage.NewMemoryStorage(), nil
	}
	log.Printf("Using filesystem %s storage at: %s", name, dir)
	return storage.NewFilesystemStorage(dir)
}

// handleHealth returns health status
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}
