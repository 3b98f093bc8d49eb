// Package runtime supervises a local llama.cpp server process for the
// lifetime of the daemon.
package runtime

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"
)

// Config describes how the model is loaded into the child runtime.
type Config struct {
	// Binary is the llama-server executable (resolved via PATH when relative).
	Binary string
	// ModelPath points at the GGUF model file. It must exist before launch.
	ModelPath string
	// Port the child listens on.
	Port int
	// Context window size (tokens).
	CtxSize int
	// Prompt processing batch size.
	BatchSize int
	// GPULayers is the layer offload count; -1 offloads everything.
	GPULayers int
	// GracePeriod bounds the SIGTERM to SIGKILL window on Stop.
	GracePeriod time.Duration
}

// Runtime owns the child llama-server process.
type Runtime struct {
	cfg    Config
	cmd    *exec.Cmd
	logger *log.Logger
	done   chan error
}

// New validates the configuration. A missing model file is fatal here, before
// any listener opens: the daemon must not accept traffic it cannot serve.
func New(cfg Config, logger *log.Logger) (*Runtime, error) {
	if cfg.Binary == "" {
		cfg.Binary = "llama-server"
	}
	if cfg.Port == 0 {
		cfg.Port = 8808
	}
	if cfg.CtxSize == 0 {
		cfg.CtxSize = 4096
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 512
	}
	if cfg.GPULayers == 0 {
		cfg.GPULayers = -1
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = 5 * time.Second
	}

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file %s not found, run the download script first: %w", cfg.ModelPath, err)
	}
	return &Runtime{cfg: cfg, logger: logger}, nil
}

// BaseURL returns the child's HTTP address.
func (r *Runtime) BaseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", r.cfg.Port)
}

// Start launches the child process.
func (r *Runtime) Start() error {
	args := []string{
		"-m", r.cfg.ModelPath,
		"-c", strconv.Itoa(r.cfg.CtxSize),
		"-b", strconv.Itoa(r.cfg.BatchSize),
		"-ngl", strconv.Itoa(r.cfg.GPULayers),
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(r.cfg.Port),
	}
	cmd := exec.Command(r.cfg.Binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if r.logger != nil {
		r.logger.Printf("loading model %s ctx=%d batch=%d gpu_layers=%d port=%d",
			r.cfg.ModelPath, r.cfg.CtxSize, r.cfg.BatchSize, r.cfg.GPULayers, r.cfg.Port)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", r.cfg.Binary, err)
	}
	r.cmd = cmd
	r.done = make(chan error, 1)
	go func() {
		r.done <- cmd.Wait()
	}()
	return nil
}

// WaitReady polls the probe until the runtime reports healthy, the child
// exits, or ctx expires. Model loading can take minutes for large weights.
func (r *Runtime) WaitReady(ctx context.Context, probe func(context.Context) error) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-r.done:
			return fmt.Errorf("runtime exited during startup: %v", err)
		case <-ctx.Done():
			return fmt.Errorf("runtime not ready: %w", ctx.Err())
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := probe(probeCtx)
			cancel()
			if err == nil {
				if r.logger != nil {
					r.logger.Printf("model loaded, runtime ready at %s", r.BaseURL())
				}
				return nil
			}
		}
	}
}

// Stop terminates the child, escalating from SIGTERM to SIGKILL after the
// grace period.
func (r *Runtime) Stop() error {
	if r.cmd == nil || r.cmd.Process == nil {
		return nil
	}
	if err := r.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return r.cmd.Process.Kill()
	}
	select {
	case <-r.done:
		return nil
	case <-time.After(r.cfg.GracePeriod):
		if r.logger != nil {
			r.logger.Printf("runtime ignored SIGTERM, killing")
		}
		return r.cmd.Process.Kill()
	}
}
