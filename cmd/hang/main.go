// Command hang ingests a media stream from stdin and publishes it to a
// relay (spec.md §6's CLI surface): --config path, --url URL, --name
// NAME, --format {annexb|cmaf}.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zsiec/hang/internal/annexb"
	"github.com/zsiec/hang/internal/cmaf"
	"github.com/zsiec/hang/internal/model"
	"github.com/zsiec/hang/internal/readyz"
	"github.com/zsiec/hang/internal/session"
	"github.com/zsiec/hang/internal/transport"
)

// shutdownGrace is how long Run waits for the session to close cleanly
// after ctrl-c before giving up and exiting anyway (spec §5).
const shutdownGrace = 100 * time.Millisecond

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("exiting", "error", err)
		os.Exit(1)
	}
}

// config holds the CLI's flag/env/file-derived settings.
type config struct {
	URL    string
	Name   string
	Format string
}

// fileConfig is the optional JSON document --config points at, filling
// in whichever of url/name the flags (and their env-var defaults)
// left blank. --format always comes from the flag/env, never the file,
// since it changes which importer type is constructed.
type fileConfig struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

func loadConfig(args []string) (config, error) {
	fs := flag.NewFlagSet("hang", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a JSON config file")
	url := fs.String("url", envOr("HANG_URL", ""), "relay URL to publish to")
	name := fs.String("name", envOr("HANG_NAME", ""), "broadcast name")
	format := fs.String("format", envOr("HANG_FORMAT", "cmaf"), "input format: annexb or cmaf")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	cfg := config{URL: *url, Name: *name, Format: *format}

	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return config{}, fmt.Errorf("reading %s: %w", *configPath, err)
		}
		var fc fileConfig
		if err := json.Unmarshal(data, &fc); err != nil {
			return config{}, fmt.Errorf("parsing %s: %w", *configPath, err)
		}
		if cfg.URL == "" {
			cfg.URL = fc.URL
		}
		if cfg.Name == "" {
			cfg.Name = fc.Name
		}
	}

	if cfg.Format != "annexb" && cfg.Format != "cmaf" {
		return config{}, fmt.Errorf("invalid --format %q (want annexb or cmaf)", cfg.Format)
	}
	if cfg.URL == "" {
		return config{}, errors.New("--url is required")
	}
	if cfg.Name == "" {
		return config{}, errors.New("--name is required")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(log *slog.Logger) error {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Info("connecting", "url", cfg.URL, "name", cfg.Name, "format", cfg.Format)
	conn, ctrl, err := transport.Dial(ctx, cfg.URL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	origin := model.NewOrigin()
	sess := session.New(session.Config{
		ID:     cfg.Name,
		Role:   session.RoleClient,
		Conn:   conn,
		Ctrl:   ctrl,
		Origin: origin,
		Log:    log,
	})
	if err := sess.Handshake(ctx); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	broadcast := model.NewBroadcast()
	if err := origin.PublishBroadcast(cfg.Name, broadcast); err != nil {
		return fmt.Errorf("publishing %q: %w", cfg.Name, err)
	}

	go waitReady(ctx, log, broadcast.Consumer())

	sessionDone := make(chan error, 1)
	go func() { sessionDone <- sess.Run(ctx) }()

	importDone := make(chan error, 1)
	go func() { importDone <- ingest(ctx, log, cfg.Format, broadcast.Producer()) }()

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
		select {
		case <-sessionDone:
		case <-time.After(shutdownGrace):
		}
		return nil
	case err := <-importDone:
		cancel()
		<-sessionDone
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("ingest: %w", err)
		}
		return nil
	case err := <-sessionDone:
		cancel()
		return err
	}
}

// importer is the common surface cmaf.Import and annexb.Import both
// satisfy: a streaming Write plus an end-of-input Finish.
type importer interface {
	Write(p []byte) (int, error)
	Finish() error
	Close()
}

// ingest reads stdin in chunks, feeding it through the chosen format's
// importer until EOF or ctx is cancelled. Close always runs so every
// track this importer created ends cleanly for its subscribers,
// however ingest exits.
func ingest(ctx context.Context, log *slog.Logger, format string, producer *model.BroadcastProducer) error {
	var im importer
	switch format {
	case "cmaf":
		im = cmaf.NewImport(log, producer)
	case "annexb":
		im = annexb.NewImport(log, producer)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	defer im.Close()

	buf := make([]byte, 64*1024)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			if _, werr := im.Write(buf[:n]); werr != nil {
				return fmt.Errorf("parsing input: %w", werr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return im.Finish()
			}
			return fmt.Errorf("reading stdin: %w", err)
		}
	}
}

// waitReady signals systemd readiness once the catalog track's first
// frame has been published (spec §6).
func waitReady(ctx context.Context, log *slog.Logger, consumer *model.BroadcastConsumer) {
	tc, err := consumer.SubscribeTrack(ctx, "catalog.json")
	if err != nil {
		return
	}
	defer tc.Release()

	group, err := tc.NextGroup(ctx)
	if err != nil {
		return
	}
	defer group.Release()

	if _, err := group.NextFrame(ctx); err != nil {
		return
	}
	readyz.Ready(log)
}
