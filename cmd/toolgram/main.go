// Command toolgram serves a set of demo tools through grammar-constrained generation.
//
//	toolgram grammar            print the grammar handed to the engine
//	toolgram prompt             print the system prompt listing the tools
//	toolgram tools              list tools with their signatures
//	toolgram exec <text>        parse and run a call without the engine
//	toolgram ask <question>     generate a call with the engine and run it
//	toolgram serve              run the HTTP API
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"

	"github.com/skosovsky/toolgram"
	"github.com/skosovsky/toolgram/config"
	"github.com/skosovsky/toolgram/engine/llamacpp"
	"github.com/skosovsky/toolgram/server"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "toolgram - grammar-constrained tool calling")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  toolgram [flags] grammar           Print the generation grammar")
	fmt.Fprintln(w, "  toolgram [flags] prompt            Print the system prompt")
	fmt.Fprintln(w, "  toolgram [flags] tools             List tools")
	fmt.Fprintln(w, "  toolgram [flags] exec <text>       Execute a call such as 'add(1, 2)'")
	fmt.Fprintln(w, "  toolgram [flags] ask <question>    Ask the engine and execute its call")
	fmt.Fprintln(w, "  toolgram [flags] serve             Run the HTTP API")
	fmt.Fprintln(w, "  toolgram version                   Print version info")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Flags:")
	fs.SetOutput(w)
	fs.PrintDefaults()
}

type app struct {
	settings config.Settings
	logger   *slog.Logger
	stdout   io.Writer
	reg      *toolgram.Registry
	engine   *llamacpp.Client
	pipeline *toolgram.Pipeline
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("toolgram", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		envFile   = fs.String("env", ".env", "dotenv file to load (ignored when missing)")
		engineURL = fs.String("engine-url", "", "llama.cpp server URL (overrides TOOLGRAM_ENGINE_URL)")
		listen    = fs.String("listen", "", "HTTP listen address for serve (overrides TOOLGRAM_LISTEN_ADDR)")
		logLevel  = fs.String("log-level", "", "debug, info, warn or error (overrides TOOLGRAM_LOG_LEVEL)")
		strict    = fs.Bool("strict-arity", false, "require every argument, including defaulted ones")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			usage(stdout, fs)
			return 0
		}
		fmt.Fprintln(stderr, "error:", err)
		usage(stderr, fs)
		return 2
	}
	cmd, rest := fs.Arg(0), fs.Args()
	if len(rest) > 0 {
		rest = rest[1:]
	}
	switch cmd {
	case "", "help":
		usage(stdout, fs)
		return 0
	case "version":
		fmt.Fprintf(stdout, "toolgram %s\n", version)
		return 0
	}

	settings, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	if *engineURL != "" {
		settings.EngineURL = *engineURL
	}
	if *listen != "" {
		settings.ListenAddr = *listen
	}
	if *logLevel != "" {
		if err := settings.LogLevel.UnmarshalText([]byte(*logLevel)); err != nil {
			fmt.Fprintln(stderr, "error: -log-level:", err)
			return 2
		}
	}

	a, err := newApp(settings, stdout, stderr, *strict)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	switch cmd {
	case "grammar":
		return a.grammar()
	case "prompt":
		fmt.Fprintln(stdout, toolgram.BuildSystemPrompt(a.reg.Tools()))
		return 0
	case "tools":
		return a.tools()
	case "exec":
		return a.respond(a.pipeline.Execute(ctx, strings.Join(rest, " ")))
	case "ask":
		if len(rest) == 0 {
			fmt.Fprintln(stderr, "error: ask needs a question")
			return 2
		}
		return a.respond(a.pipeline.Ask(ctx, strings.Join(rest, " ")))
	case "serve":
		if err := a.serve(ctx); err != nil {
			a.logger.Error("server stopped", "error", err)
			return 1
		}
		return 0
	default:
		fmt.Fprintf(stderr, "error: unknown command %q\n", cmd)
		usage(stderr, fs)
		return 2
	}
}

// newLogger writes human-readable logs to w through zerolog.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.Stamp}
	log := zerolog.New(output).With().Timestamp().Logger()
	return slog.New(zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: level}))
}

func newApp(s config.Settings, stdout, stderr io.Writer, strict bool) (*app, error) {
	logger := newLogger(stderr, s.LogLevel)
	slog.SetDefault(logger)

	regOpts := []toolgram.RegistryOption{toolgram.WithLogger(logger)}
	if strict {
		regOpts = append(regOpts, toolgram.WithStrictArity())
	}
	reg, err := demoRegistry(regOpts...)
	if err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	reg.Use(toolgram.WithLogging(logger))

	engine, err := llamacpp.New(s.EngineURL, llamacpp.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	p, err := toolgram.NewPipeline(reg, engine,
		toolgram.WithPipelineLogger(logger),
		toolgram.WithMaxTokens(s.MaxTokens),
		toolgram.WithTemperature(s.Temperature),
		toolgram.WithGenerateTimeout(s.GenerateTimeout),
	)
	if err != nil {
		return nil, err
	}
	logger.Debug("toolgram configured",
		"engine_url", s.EngineURL,
		"model_path", s.ModelPath,
		"n_ctx", s.NCtx,
		"n_threads", s.NThreads,
		"tools", len(reg.Tools()),
	)
	return &app{settings: s, logger: logger, stdout: stdout, reg: reg, engine: engine, pipeline: p}, nil
}

func (a *app) grammar() int {
	g := a.reg.Grammar()
	if err := g.Check(); err != nil {
		a.logger.Warn("grammar has problems", "error", err)
	}
	fmt.Fprintln(a.stdout, g.String())
	return 0
}

func (a *app) tools() int {
	for _, t := range a.reg.Tools() {
		fmt.Fprintf(a.stdout, "%s%s\t%s\n", t.Name(), toolgram.Signature(t), t.Description())
	}
	return 0
}

func (a *app) respond(resp toolgram.Response) int {
	fmt.Fprintln(a.stdout, string(resp.JSON()))
	if !resp.OK() {
		return 1
	}
	return 0
}

func (a *app) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr: a.settings.ListenAddr,
		Handler: server.New(a.pipeline,
			server.WithLogger(a.logger),
			server.WithHealthCheck(a.engine.Health),
		).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
