// tts-server is an HTTP text-to-speech daemon. It turns text into Ogg/Opus
// speech using a Kokoro model server for phonemization and synthesis and
// ffmpeg for encoding.
//
// Usage:
//
//	tts-server [serve] [--config tts-server.yaml]
//	tts-server say --text "Hello" --lang en --out hello.ogg
//	tts-server version
//
// @title       tts-server API
// @version     1.0
// @description Text-to-speech over HTTP backed by a Kokoro model server. Returns Ogg/Opus audio.
// @BasePath    /
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/nadzzz/tts-server/docs"
	"github.com/nadzzz/tts-server/internal/config"
	"github.com/nadzzz/tts-server/internal/health"
	"github.com/nadzzz/tts-server/internal/transport"
	grpctransport "github.com/nadzzz/tts-server/internal/transport/grpc"
	httptransport "github.com/nadzzz/tts-server/internal/transport/http"
	"github.com/nadzzz/tts-server/internal/tts"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("tts-server failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "tts-server",
		Short:         "Text-to-speech HTTP server",
		Long:          "tts-server synthesizes speech with a Kokoro model server and serves it as Ogg/Opus over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (e.g. configs/tts-server.yaml)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configFile)
		},
	}

	var text, lang, out string
	sayCmd := &cobra.Command{
		Use:   "say",
		Short: "Synthesize text once and write the Ogg/Opus file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return say(cmd.Context(), configFile, tts.Request{Text: text, Lang: lang}, out)
		},
	}
	sayCmd.Flags().StringVarP(&text, "text", "t", "", "text to speak")
	sayCmd.Flags().StringVarP(&lang, "lang", "l", tts.DefaultLang, "language tag (en, gb, es, ja, zh)")
	sayCmd.Flags().StringVarP(&out, "out", "o", "", "output file (default speech_<id>.ogg)")
	_ = sayCmd.MarkFlagRequired("text")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tts-server %s\n", version)
		},
	}

	rootCmd.AddCommand(serveCmd, sayCmd, versionCmd)
	return rootCmd
}

func loadConfig(configFile string) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	config.SetupLogging(cfg.Logging)
	return cfg, nil
}

// serve runs the daemon until ctx is cancelled.
func serve(ctx context.Context, configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	slog.Info("tts-server starting", "version", version)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	go a.workspace.RunJanitor(ctx, cfg.Storage.SweepInterval, cfg.Storage.Retention)

	hs := health.New()
	httpTransport := httptransport.New(cfg.Server, a.orch, hs)
	transports := []transport.Transport{httpTransport}

	var grpcTransport *grpctransport.Transport
	if cfg.GRPC.Enabled {
		grpcTransport = grpctransport.New(cfg.GRPC.Port)
		transports = append(transports, grpcTransport)
	}

	setReady := func(ready bool) {
		hs.SetReady(ready)
		if grpcTransport != nil {
			grpcTransport.SetServing(ready)
		}
	}

	// Start all transports. A listener failure stops the daemon.
	var wg sync.WaitGroup
	var failMu sync.Mutex
	var failure error
	for _, t := range transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
				failMu.Lock()
				failure = errors.Join(failure, err)
				failMu.Unlock()
				cancel()
			}
		}(t)
	}

	// Missing pipelines are built on first use, so a failed prewarm is not fatal.
	if err := a.prewarm(ctx); err != nil {
		slog.Warn("prewarm incomplete", "error", err)
	}

	setReady(true)
	slog.Info("tts-server ready",
		"addr", cfg.Server.Addr(),
		"grpc", cfg.GRPC.Enabled,
		"temp_dir", a.workspace.Dir())

	// Block until shutdown signal or transport failure.
	<-ctx.Done()
	slog.Info("shutdown signal received, draining...")
	setReady(false)

	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	wg.Wait()
	slog.Info("tts-server stopped")
	return failure
}

// say synthesizes one request and writes the result to out.
func say(ctx context.Context, configFile string, req tts.Request, out string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	art, err := a.orch.Synthesize(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", tts.ErrorCode(err), err)
	}
	defer art.Remove()

	if out == "" {
		out = art.Filename()
	}
	data, err := os.ReadFile(art.OGGPath)
	if err != nil {
		return fmt.Errorf("reading synthesized audio: %w", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}

	slog.Info("speech written", "path", out, "bytes", len(data))
	return nil
}
