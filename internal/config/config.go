// Package config loads graceaid settings from an INI file with environment
// variable overrides. Precedence: GRACEAI_* env vars, then the config file,
// then built-in defaults.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const configFile = "config/graceai.ini"

// Config describes runtime options for the daemon.
type Config struct {
	// Addr is the listen address of the HTTP façade.
	Addr string

	// ModelPath points at the GGUF weights file. Required unless the loopback
	// backend is selected.
	ModelPath string

	// Backend selects the generation engine: llamacpp or loopback.
	Backend string
	// BackendURL is the llama-server base URL when the runtime is external.
	BackendURL string
	// ManageRuntime spawns and supervises llama-server as a child process.
	ManageRuntime bool
	// RequestTimeout bounds non-streaming generation calls.
	RequestTimeout time.Duration

	// Model load parameters passed to the managed runtime.
	CtxSize   int
	BatchSize int
	GPULayers int

	// TemplateFile optionally overrides the built-in prompt template (YAML).
	TemplateFile string

	// Usage ledger.
	LedgerDriver string // sqlite, postgres or empty to disable
	LedgerPath   string // sqlite database file
	LedgerDSN    string // postgres connection string

	LogFile  string
	LogLevel string
}

// Load reads the config file under root (missing file is fine, defaults apply)
// and applies environment overrides.
func Load(root string) (Config, error) {
	if root == "" {
		root = "."
	}
	values, err := parseINI(filepath.Join(root, configFile))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
		values = map[string]string{}
	}

	cfg := Config{
		Addr:          firstNonEmpty(os.Getenv("GRACEAI_ADDR"), values["addr"], "127.0.0.1:8000"),
		ModelPath:     firstNonEmpty(os.Getenv("GRACEAI_MODEL_PATH"), values["model_path"]),
		Backend:       strings.ToLower(firstNonEmpty(os.Getenv("GRACEAI_BACKEND"), values["backend"], "llamacpp")),
		BackendURL:    firstNonEmpty(os.Getenv("GRACEAI_BACKEND_URL"), values["backend_url"]),
		ManageRuntime: parseOptionalBool(firstNonEmpty(os.Getenv("GRACEAI_MANAGE_RUNTIME"), values["manage_runtime"]), true),
		CtxSize:       parseOptionalInt(firstNonEmpty(os.Getenv("GRACEAI_CTX_SIZE"), values["ctx_size"]), 4096),
		BatchSize:     parseOptionalInt(firstNonEmpty(os.Getenv("GRACEAI_BATCH_SIZE"), values["batch_size"]), 512),
		GPULayers:     parseOptionalInt(firstNonEmpty(os.Getenv("GRACEAI_GPU_LAYERS"), values["gpu_layers"]), -1),
		TemplateFile:  firstNonEmpty(os.Getenv("GRACEAI_TEMPLATE_FILE"), values["template_file"]),
		LedgerDriver:  strings.ToLower(firstNonEmpty(os.Getenv("GRACEAI_LEDGER_DRIVER"), values["ledger_driver"], "sqlite")),
		LedgerPath:    firstNonEmpty(os.Getenv("GRACEAI_LEDGER_PATH"), values["ledger_path"], DefaultLedgerPath()),
		LedgerDSN:     firstNonEmpty(os.Getenv("GRACEAI_LEDGER_DSN"), values["ledger_dsn"]),
		LogFile:       firstNonEmpty(os.Getenv("GRACEAI_LOG_FILE"), values["log_file"]),
		LogLevel:      strings.ToLower(firstNonEmpty(os.Getenv("GRACEAI_LOG_LEVEL"), values["log_level"], "info")),
	}

	if v := firstNonEmpty(os.Getenv("GRACEAI_REQUEST_TIMEOUT"), values["request_timeout"]); v != "" {
		dur, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid request_timeout %q: %w", v, err)
		}
		cfg.RequestTimeout = dur
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Backend {
	case "llamacpp", "loopback":
	default:
		return fmt.Errorf("unknown backend %q (expected llamacpp or loopback)", c.Backend)
	}
	switch c.LedgerDriver {
	case "sqlite", "postgres", "none", "":
	default:
		return fmt.Errorf("unknown ledger_driver %q (expected sqlite, postgres or none)", c.LedgerDriver)
	}
	if c.LedgerDriver == "postgres" && c.LedgerDSN == "" {
		return errors.New("ledger_driver=postgres requires ledger_dsn")
	}
	if c.Backend == "llamacpp" && c.ModelPath == "" && c.BackendURL == "" {
		return errors.New("backend=llamacpp requires model_path or backend_url")
	}
	return nil
}

// ModelName returns the model identifier reported over the API: the basename
// of the weights file, or the backend name when no file is configured.
func (c Config) ModelName() string {
	if c.ModelPath != "" {
		return filepath.Base(c.ModelPath)
	}
	return c.Backend
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseOptionalBool(v string, fallback bool) bool {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return parseBool(v)
}

func parseOptionalInt(v string, fallback int) int {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return parsed
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// DefaultLedgerPath returns the fallback usage database location under the
// user's home directory.
func DefaultLedgerPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "usage.db"
	}
	return filepath.Join(home, ".graceai", "usage.db")
}
