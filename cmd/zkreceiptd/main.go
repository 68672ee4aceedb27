// Command zkreceiptd is the receipt service's process entrypoint: it
// loads configuration, wires the registry, preprocessing cache, receipt
// store and prove pipeline into an HTTP server, runs the startup
// preprocessing sweep, and starts the periodic hot-cache eviction task.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/zkreceipt/receipt-service/internal/config"
	"github.com/zkreceipt/receipt-service/internal/httpapi"
	"github.com/zkreceipt/receipt-service/internal/input"
	"github.com/zkreceipt/receipt-service/internal/log"
	"github.com/zkreceipt/receipt-service/internal/model/refruntime"
	"github.com/zkreceipt/receipt-service/internal/modelpkg"
	"github.com/zkreceipt/receipt-service/internal/preprocess"
	"github.com/zkreceipt/receipt-service/internal/prove"
	"github.com/zkreceipt/receipt-service/internal/prove/refsnark"
	"github.com/zkreceipt/receipt-service/internal/ratelimit"
	"github.com/zkreceipt/receipt-service/internal/receipts"
)

// hotCacheEvictionInterval matches spec.md §5's "a periodic task removes
// hot receipts older than 1 hour".
const hotCacheEvictionInterval = time.Hour

// hotCacheMaxAge is the age threshold applied by that periodic task.
const hotCacheMaxAge = time.Hour

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("zkreceiptd: %w", err)
	}
	if err := cfg.ResolveDatabaseDir(); err != nil {
		return fmt.Errorf("zkreceiptd: %w", err)
	}

	log.SetDefault(log.New(levelFromString(cfg.LogLevel)))
	logger := log.Module("main")

	registry := modelpkg.NewRegistry()
	if err := registry.ScanDirectory(cfg.ModelsDir); err != nil {
		return fmt.Errorf("zkreceiptd: scan models dir: %w", err)
	}
	if err := registry.ScanDirectory(cfg.UploadedModelsDir); err != nil {
		return fmt.Errorf("zkreceiptd: scan uploaded models dir: %w", err)
	}
	logger.Info("model registry loaded", "count", registry.Len())

	store, err := receipts.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("zkreceiptd: open receipt store: %w", err)
	}
	defer store.Close()

	cache := preprocess.NewCache()
	runtime := refruntime.New()
	system := refsnark.NewAdapter()

	ctx := context.Background()
	preprocess.PopulateAll(ctx, adaptSystemPreprocess(system), registry, cache)
	logger.Info("startup preprocessing sweep complete", "cached", cache.Len(), "registered", registry.Len())

	vocab := loadVocabularies(registry, logger)

	pipeline := prove.NewPipeline(registry, cache, store, runtime, system, vocab)

	submitProofCfg, batchCfg, uploadCfg := ratelimit.DefaultConfigs()
	server := httpapi.NewServer(&httpapi.Server{
		Registry:          registry,
		Cache:             cache,
		Store:             store,
		Pipeline:          pipeline,
		UploadedModelsDir: cfg.UploadedModelsDir,
		CORSOrigins:       cfg.CORSOrigins,
		BaseURL:           cfg.BaseURL,
		Limiters: httpapi.Limiters{
			SubmitProof: ratelimit.New(submitProofCfg),
			Batch:       ratelimit.New(batchCfg),
			Upload:      ratelimit.New(uploadCfg),
		},
	})

	stopEviction := startCacheEviction(store, logger)
	defer close(stopEviction)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("listening", "addr", addr)
	return http.ListenAndServe(addr, server.Handler())
}

// adaptSystemPreprocess wraps a prove.System's Preprocess method in the
// plain-function shape internal/preprocess requires, avoiding a direct
// package dependency between preprocess and prove.
func adaptSystemPreprocess(sys prove.System) preprocess.PreprocessFunc {
	return func(ctx context.Context, artifactPath string, traceLength int) (any, any, error) {
		return sys.Preprocess(ctx, artifactPath, traceLength)
	}
}

// startCacheEviction runs the hourly hot-cache eviction task from
// spec.md §5 on its own goroutine, returning a channel that stops it
// when closed.
func startCacheEviction(store *receipts.Store, logger *log.Logger) chan struct{} {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(hotCacheEvictionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				removed := store.CleanupCache(hotCacheMaxAge)
				logger.Debug("hot cache eviction ran", "removed", removed)
			case <-stop:
				return
			}
		}
	}()
	return stop
}

// loadVocabularies loads a vocab.json alongside each registered model's
// artifact directory, if present, matching spec.md §6's "Vocabulary
// files (if applicable) live alongside as vocab.json". Any model's
// encoding needs are satisfied at request time by whichever vocab
// matches its InputKind; vocabularies of the same kind are merged. A kind
// for which no vocab file was found stays nil, and the input encoder then
// reports a definite error instead of silently encoding a zero vector.
func loadVocabularies(registry *modelpkg.Registry, logger *log.Logger) input.Vocabularies {
	vocab := input.Vocabularies{}

	for _, d := range registry.List() {
		if d.ArtifactPath == "" {
			continue
		}
		vocabPath := filepathJoinDir(d.ArtifactPath, "vocab.json")
		switch d.InputKind {
		case modelpkg.InputText:
			if v, err := input.LoadTfIdfVocab(vocabPath); err == nil {
				if vocab.TfIdf == nil {
					vocab.TfIdf = input.TfIdfVocab{}
				}
				for k, e := range v {
					vocab.TfIdf[k] = e
				}
			} else {
				logger.Debug("no text vocabulary found for model", "model_id", d.ID)
			}
		case modelpkg.InputStructured:
			if v, err := input.LoadOneHotVocab(vocabPath); err == nil {
				if vocab.OneHot == nil {
					vocab.OneHot = input.OneHotVocab{}
				}
				for k, idx := range v {
					vocab.OneHot[k] = idx
				}
			} else {
				logger.Debug("no structured vocabulary found for model", "model_id", d.ID)
			}
		}
	}
	return vocab
}

func filepathJoinDir(artifactPath, file string) string {
	dir := artifactPath
	for i := len(dir) - 1; i >= 0; i-- {
		if dir[i] == '/' {
			dir = dir[:i]
			break
		}
	}
	return dir + "/" + file
}

func levelFromString(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
