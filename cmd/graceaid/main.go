// graceaid serves an OpenAI-compatible chat completion API backed by a local
// llama.cpp model.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/max-7189/GraceAi/internal/backend"
	"github.com/max-7189/GraceAi/internal/backend/llamacpp"
	"github.com/max-7189/GraceAi/internal/backend/loopback"
	"github.com/max-7189/GraceAi/internal/config"
	"github.com/max-7189/GraceAi/internal/httpserver"
	"github.com/max-7189/GraceAi/internal/ledger"
	ledgerasync "github.com/max-7189/GraceAi/internal/ledger/async"
	ledgerpg "github.com/max-7189/GraceAi/internal/ledger/postgres"
	ledgersql "github.com/max-7189/GraceAi/internal/ledger/sqlite"
	"github.com/max-7189/GraceAi/internal/logging"
	"github.com/max-7189/GraceAi/internal/prompt"
	"github.com/max-7189/GraceAi/internal/runtime"
	"github.com/max-7189/GraceAi/internal/version"
)

const maxLogBytes = int64(100 * 1024 * 1024) // 100MB per file

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configRoot := flag.String("config-root", ".", "directory containing config/graceai.ini")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.FullInfo())
		return
	}

	cfg, err := config.Load(*configRoot)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := log.New(os.Stdout, "[graceaid] ", log.LstdFlags|log.Lmicroseconds)
	if target := strings.TrimSpace(cfg.LogFile); target != "" {
		rot, err := logging.NewRotatingWriter(target, maxLogBytes)
		if err != nil {
			log.Fatalf("init rotating log: %v", err)
		}
		defer rot.Close()
		// Mirror to stdout for foreground runs.
		logger.SetOutput(io.MultiWriter(os.Stdout, rot))
	}
	logger.Printf("graceaid %s starting", version.Info())

	engine, rt, err := buildEngine(cfg, logger)
	if err != nil {
		logger.Fatalf("init backend: %v", err)
	}
	if rt != nil {
		defer func() {
			if err := rt.Stop(); err != nil {
				logger.Printf("stop runtime: %v", err)
			}
		}()
	}
	// One model, one generation at a time.
	engine = backend.Serialize(engine)

	usage, err := buildLedger(cfg, logger)
	if err != nil {
		logger.Fatalf("open usage ledger: %v", err)
	}
	if usage != nil {
		defer usage.Close()
	}

	template := prompt.DeepSeek()
	if cfg.TemplateFile != "" {
		template, err = prompt.Load(cfg.TemplateFile)
		if err != nil {
			logger.Fatalf("load prompt template: %v", err)
		}
	}

	api := httpserver.New(engine, template, cfg.ModelName(), usage, logger)
	srv := &http.Server{
		Addr:        cfg.Addr,
		Handler:     api.Router(),
		ReadTimeout: 15 * time.Second,
		// No write timeout: streaming responses stay open for the duration of
		// a generation.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Printf("serving model %s on %s", cfg.ModelName(), cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	<-sigs
	logger.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

// buildEngine constructs the generation engine and, when configured, the
// managed llama-server runtime behind it.
func buildEngine(cfg config.Config, logger *log.Logger) (backend.Engine, *runtime.Runtime, error) {
	if cfg.Backend == "loopback" {
		logger.Printf("using loopback backend, no model will be loaded")
		return loopback.New(), nil, nil
	}

	baseURL := cfg.BackendURL
	var rt *runtime.Runtime
	if cfg.ManageRuntime && baseURL == "" {
		var err error
		rt, err = runtime.New(runtime.Config{
			ModelPath: cfg.ModelPath,
			CtxSize:   cfg.CtxSize,
			BatchSize: cfg.BatchSize,
			GPULayers: cfg.GPULayers,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := rt.Start(); err != nil {
			return nil, nil, err
		}
		baseURL = rt.BaseURL()
	}

	client, err := llamacpp.New(llamacpp.Config{
		BaseURL:        baseURL,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return nil, rt, err
	}

	if rt != nil {
		// Large models take a while to load; block startup until the runtime
		// answers its health check.
		readyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := rt.WaitReady(readyCtx, client.Health); err != nil {
			_ = rt.Stop()
			return nil, nil, err
		}
	}
	return client, rt, nil
}

func buildLedger(cfg config.Config, logger *log.Logger) (ledger.Store, error) {
	var store ledger.Store
	switch cfg.LedgerDriver {
	case "sqlite":
		s, err := ledgersql.New(cfg.LedgerPath)
		if err != nil {
			return nil, err
		}
		store = s
	case "postgres":
		s, err := ledgerpg.New(cfg.LedgerDSN)
		if err != nil {
			return nil, err
		}
		store = s
	case "none", "":
		logger.Printf("usage ledger disabled")
		return nil, nil
	}
	return ledgerasync.New(store, ledgerasync.Config{Logger: logger}), nil
}
