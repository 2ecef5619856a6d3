// Package config loads toolgram process settings from .env files and TOOLGRAM_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "TOOLGRAM_"

// Settings holds the process configuration.
type Settings struct {
	// EngineURL is the base URL of the llama.cpp server.
	EngineURL string
	// ModelPath is the model file the engine serves. Informational for remote engines.
	ModelPath string
	NCtx      int
	NThreads  int
	LogLevel  slog.Level
	// MaxTokens and Temperature are passed with every generation request.
	MaxTokens   int
	Temperature float64
	// GenerateTimeout bounds one generation. Zero disables the bound.
	GenerateTimeout time.Duration
	// ListenAddr is where the HTTP API listens.
	ListenAddr string
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		EngineURL:       "http://127.0.0.1:8080",
		ModelPath:       "models/ggml-model.bin",
		NCtx:            2048,
		NThreads:        4,
		LogLevel:        slog.LevelInfo,
		MaxTokens:       64,
		Temperature:     0,
		GenerateTimeout: 30 * time.Second,
		ListenAddr:      ":8000",
	}
}

// Load reads the given .env files (missing files are skipped; variables already set in the
// environment win) and then the environment. Invalid values are reported together.
func Load(files ...string) (Settings, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds Settings from a lookup function such as os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (Settings, error) {
	s := Defaults()
	p := parser{lookup: lookup}
	p.str("ENGINE_URL", &s.EngineURL)
	p.str("MODEL_PATH", &s.ModelPath)
	p.int("N_CTX", &s.NCtx)
	p.int("N_THREADS", &s.NThreads)
	p.level("LOG_LEVEL", &s.LogLevel)
	p.int("MAX_TOKENS", &s.MaxTokens)
	p.float("TEMPERATURE", &s.Temperature)
	p.duration("GENERATE_TIMEOUT", &s.GenerateTimeout)
	p.str("LISTEN_ADDR", &s.ListenAddr)
	if err := errors.Join(p.errs...); err != nil {
		return Settings{}, err
	}
	return s, nil
}

type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) get(key string) (string, bool) {
	v, ok := p.lookup(EnvPrefix + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (p *parser) fail(key, value string, err error) {
	p.errs = append(p.errs, fmt.Errorf("%s%s=%q: %w", EnvPrefix, key, value, err))
}

func (p *parser) str(key string, dst *string) {
	if v, ok := p.get(key); ok {
		*dst = v
	}
}

func (p *parser) int(key string, dst *int) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	if n <= 0 {
		p.fail(key, v, errors.New("must be positive"))
		return
	}
	*dst = n
}

func (p *parser) float(key string, dst *float64) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	if f < 0 {
		p.fail(key, v, errors.New("must not be negative"))
		return
	}
	*dst = f
}

func (p *parser) duration(key string, dst *time.Duration) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	if d < 0 {
		p.fail(key, v, errors.New("must not be negative"))
		return
	}
	*dst = d
}

func (p *parser) level(key string, dst *slog.Level) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = l
}
