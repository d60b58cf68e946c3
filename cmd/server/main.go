// Command lindows-go-server runs the signaling endpoint and the
// single screen-capture broadcast pipeline every connected peer
// receives.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/m4n5ter/lindows-go/internal/capture/screenshotsrc"
	"github.com/m4n5ter/lindows-go/internal/config"
	"github.com/m4n5ter/lindows-go/internal/encode"
	"github.com/m4n5ter/lindows-go/internal/input"
	"github.com/m4n5ter/lindows-go/internal/pipeline"
	"github.com/m4n5ter/lindows-go/internal/rtcapi"
	"github.com/m4n5ter/lindows-go/internal/server"
	"github.com/m4n5ter/lindows-go/internal/session"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Error("failed to parse configuration", "error", err)
		os.Exit(1)
	}

	api, err := rtcapi.New(cfg.StunServer, log)
	if err != nil {
		log.Error("failed to build webrtc api", "error", err)
		os.Exit(1)
	}

	broadcast, err := rtcapi.NewBroadcastTrack()
	if err != nil {
		log.Error("failed to create broadcast track", "error", err)
		os.Exit(1)
	}

	manager := session.NewManager(log)

	src := screenshotsrc.New()
	perm := screenshotsrc.NewPermission()
	if !perm.Test() {
		if err := perm.Request(); err != nil {
			log.Error("capture permission denied", "error", err)
			os.Exit(1)
		}
	}

	windows, err := src.Enumerate()
	if err != nil {
		log.Error("failed to enumerate capturable windows", "error", err)
		os.Exit(1)
	}
	window, ok := windowForConfig(windows, cfg.CaptureAppID)
	if !ok {
		log.Error("no capturable window matched the configured application id", "app_id", cfg.CaptureAppID)
		os.Exit(1)
	}
	log.Info("capturing window", "window_id", window.ID, "title", window.Title)

	quality := qualityFromString(cfg.EncodeQuality)
	encSession, err := encode.New(window.Bounds.Dx(), window.Bounds.Dy(), quality, cfg.EncodeBitrate)
	if err != nil {
		log.Error("failed to build encoder", "error", err)
		os.Exit(1)
	}

	pipe := pipeline.New(src, window, encSession, broadcast, cfg.CaptureFPS, log)
	pipe.Start(context.Background())

	sink := input.NewLoggingSink(log)

	mux := http.NewServeMux()
	srv := server.New(api, manager, broadcast, sink, log)
	mux.HandleFunc("/ws", srv.HandleWebSocket)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		log.Info("listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	waitForShutdown(log)

	log.Info("shutting down")
	if err := httpServer.Shutdown(context.Background()); err != nil {
		log.Warn("error shutting down http server", "error", err)
	}
	if err := pipe.Stop(); err != nil {
		log.Warn("error stopping capture pipeline", "error", err)
	}
	manager.CloseAll()
}

func waitForShutdown(log *slog.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info("received shutdown signal", "signal", s.String())
}
