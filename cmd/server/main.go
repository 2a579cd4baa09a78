package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/vidguard/internal/api"
	"github.com/bobarin/vidguard/internal/blobstore"
	"github.com/bobarin/vidguard/internal/clients"
	"github.com/bobarin/vidguard/internal/config"
	"github.com/bobarin/vidguard/internal/jobqueue"
	"github.com/bobarin/vidguard/internal/jobstore"
	"github.com/bobarin/vidguard/internal/mediatoolbox"
	"github.com/bobarin/vidguard/internal/orchestrator"
)

func main() {
	log.Println("Starting vidguard server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	blobs := blobstore.New(cfg.StorageURL, cfg.StorageServiceKey, cfg.StorageBucket, cfg.ImpersonateServiceIdentity, cfg.SignBlobURL)
	log.Println("Initialized blob store")

	jobs := jobstore.New(cfg.JobsBaseDir, blobs)

	queue, err := jobqueue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer queue.Close()
	log.Println("Connected to Redis queue")

	media := mediatoolbox.New(cfg.FFmpegPath, cfg.FFprobePath)

	seg := clients.NewGeminiSegmentationClient(cfg.GeminiKey)
	analyze := clients.NewOpenAIAnalyzerClient(cfg.OpenAIKey)

	var gen clients.GenerativeEditClient
	switch {
	case cfg.XAIEnabled && cfg.XAIAPIKey != "":
		gen = clients.NewXAIGenerativeClient(cfg.XAIAPIKey)
		log.Println("Generative-replace backend: xAI")
	case cfg.VeoEnabled:
		gen = clients.NewVeoGenerativeClient(cfg.GeminiKey, cfg.VeoModel)
		log.Printf("Generative-replace backend: Veo (model: %s)", cfg.VeoModel)
	default:
		log.Println("WARNING: no generative-replace backend configured — replace-generative requests will fail")
	}

	var tts clients.TTSClient
	if cfg.ElevenLabsKey != "" {
		tts = clients.NewElevenLabsTTSClient(cfg.ElevenLabsKey)
		log.Println("TTS backend: ElevenLabs")
	} else {
		tts = clients.NewCartesiaTTSClient(cfg.CartesiaKey, cfg.CartesiaURL)
		log.Println("TTS backend: Cartesia (no voice cloning)")
	}

	orch := orchestrator.New(cfg, jobs, blobs, queue, media, seg, gen, tts, analyze)

	handler := api.NewHandler(orch)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	go runFrameExtractionWorker(workerCtx, queue, orch)

	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	workerCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// runFrameExtractionWorker drains the background frame-extraction queue
// until ctx is cancelled, driving each task through the orchestrator.
func runFrameExtractionWorker(ctx context.Context, queue *jobqueue.Queue, orch *orchestrator.Orchestrator) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := queue.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("frame extraction dequeue error: %v", err)
			continue
		}
		if task == nil {
			continue
		}

		if err := orch.ExtractFrames(ctx, *task); err != nil {
			log.Printf("frame extraction failed for job %s: %v", task.JobID, err)
		}
	}
}
