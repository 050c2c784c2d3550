// Folio is a terminal document viewer.
//
// Architecture:
//
//	processor (textdoc backend) <- rpc channel -> document.Controller -> ui (Bubble Tea)
//
// The processor runs in its own goroutine behind the message channel; the
// controller owns pages, zoom, rotation and search and drives lazy page work
// through the viewport tracker.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/folio/internal/acquire"
	"github.com/abelbrown/folio/internal/config"
	"github.com/abelbrown/folio/internal/document"
	"github.com/abelbrown/folio/internal/logging"
	"github.com/abelbrown/folio/internal/otel"
	"github.com/abelbrown/folio/internal/processor"
	"github.com/abelbrown/folio/internal/rpc"
	"github.com/abelbrown/folio/internal/store"
	"github.com/abelbrown/folio/internal/textdoc"
	"github.com/abelbrown/folio/internal/ui"
	"github.com/abelbrown/folio/internal/viewport"
)

// historyKeep is how many documents the view history remembers.
const historyKeep = 200

func main() {
	if len(os.Args) > 2 {
		fatal("usage: folio [file-or-url]")
	}
	var location string
	if len(os.Args) == 2 {
		location = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("Failed to load config: %v", err)
	}
	fixed := cfg.Validate()

	// Initialize logging
	if err := logging.Init(cfg.Log.Dir, cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	defer logging.Close()
	for _, field := range fixed {
		logging.Warn("config value out of range, using default", "field", field)
	}

	// Observability: JSONL events plus an in-memory ring for the debug overlay
	if cfg.Trace {
		otel.EnableTrace()
	}
	ring := otel.NewRingBuffer(otel.DefaultRingSize)
	events := otel.NewNullLogger()
	eventsPath := filepath.Join(cfg.Log.Dir, "folio-events.jsonl")
	if f, err := os.OpenFile(eventsPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
		events = otel.NewLogger(f)
		defer f.Close()
	} else {
		logging.Warn("events file unavailable", "path", eventsPath, "err", err)
	}
	events.Attach(ring)
	defer events.Close()
	events.Info(otel.KindStartup, "main", "folio starting")

	// View history
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
		fatal("Failed to create data directory: %v", err)
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		fatal("Failed to open database: %v", err)
	}
	defer st.Close()
	if n, err := st.Prune(historyKeep); err != nil {
		logging.Warn("prune history failed", "err", err)
	} else if n > 0 {
		logging.Info("pruned history", "removed", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Processor behind the message channel
	srv := rpc.NewServer()
	processor.Register(srv, textdoc.New())
	clientEnd, serverEnd := rpc.Pipe()
	go func() {
		if err := srv.Serve(ctx, serverEnd); err != nil && ctx.Err() == nil {
			logging.Error("processor stopped", "err", err)
		}
	}()
	rc, err := rpc.Dial(ctx, clientEnd, rpc.WithEvents(events))
	if err != nil {
		fatal("Failed to start processor: %v", err)
	}
	defer rc.Close()
	proc, err := processor.NewClient(rc)
	if err != nil {
		fatal("Processor incomplete: %v", err)
	}
	logging.Info("processor ready", "operations", len(rc.Operations()))

	bridge := ui.NewBridge()
	defer bridge.Close()
	ctrl := document.New(proc, document.Options{
		Zoom:             cfg.View.Zoom,
		DevicePixelRatio: cfg.View.DevicePixelRatio,
		PageGap:          float64(cfg.View.PageGap),
		Margins: viewport.Margins{
			Above: cfg.Viewport.PrefetchAbove,
			Below: cfg.Viewport.PrefetchBelow,
		},
		Debounce: time.Duration(cfg.Viewport.DebounceMs) * time.Millisecond,
		Listener: bridge,
		Events:   events,
	})
	defer ctrl.Close()

	app := ui.NewApp(ui.AppConfig{
		Ctrl: ctrl,
		Ctx:  ctx,
		Open: ui.Opener(ctx, acquire.NewFetcher(), ctrl, bridge),
		LoadView: func(digest string) tea.Cmd {
			return func() tea.Msg {
				v, ok, err := st.LoadView(digest)
				return ui.ViewRestored{View: v, Found: ok, Err: err}
			}
		},
		SaveView: func(v store.View) tea.Cmd {
			return func() tea.Msg {
				return ui.ViewSaved{Err: st.SaveView(v)}
			}
		},
		Recent: func(limit int) tea.Cmd {
			return func() tea.Msg {
				views, err := st.Recent(limit)
				return ui.RecentLoaded{Views: views, Err: err}
			}
		},
		Forget: func(digest string) tea.Cmd {
			return func() tea.Msg {
				return ui.ViewForgotten{Digest: digest, Err: st.Forget(digest)}
			}
		},
		Ring:      ring,
		Location:  location,
		CanCopy:   cfg.Access.CanCopyText,
		CellWidth: cfg.View.CellWidth,
	})

	p := tea.NewProgram(app, tea.WithAltScreen())
	bridge.Attach(p)

	logging.Info("Starting UI", "location", location)
	if _, err := p.Run(); err != nil {
		logging.Error("Application error", "error", err)
		fatal("Error: %v", err)
	}

	events.Info(otel.KindShutdown, "main", "folio exiting")
	logging.Info("folio exiting normally")
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
