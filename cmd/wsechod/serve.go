package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/coregx/wsproto/internal/config"
	"github.com/coregx/wsproto/internal/logging"
	"github.com/coregx/wsproto/websocket"
)

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if err := logging.Initialize(cfg.LogLevel); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := websocket.NewHub(logging.Logger())
	go hub.Run()
	defer hub.Close()

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, func(w http.ResponseWriter, r *http.Request) {
		serveWS(ctx, w, r, cfg, hub)
	})

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("server listening",
			zap.String("addr", cfg.Listen),
			zap.String("path", cfg.Path),
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logging.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// serveWS upgrades one request and pumps it until the session ends.
func serveWS(ctx context.Context, w http.ResponseWriter, r *http.Request, cfg *config.Config, hub *websocket.Hub) {
	conn, err := websocket.Upgrade(w, r, &websocket.UpgradeOptions{
		MaxFrameSize:   cfg.MaxFrameSize,
		MaxMessageSize: cfg.MaxMessageSize,
	})
	if err != nil {
		var hsErr websocket.HandshakeError
		if errors.As(err, &hsErr) {
			hsErr.WriteResponse(w)
		}
		logging.Warn("upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	remoteAddr := r.RemoteAddr
	logging.LogConnection(remoteAddr, "websocket_upgraded")
	defer logging.LogConnection(remoteAddr, "websocket_closed")

	hub.Register(conn)
	defer hub.Unregister(conn)
	hub.BroadcastText("client joined")
	defer hub.BroadcastText("client left")

	d := websocket.NewDispatcher(conn, &websocket.DispatcherOptions{
		Logger:       logging.Logger(),
		CloseTimeout: cfg.CloseTimeout,
	})

	// Echo consumer: every data message goes straight back to the sender.
	go func() {
		for msg := range d.Messages() {
			switch msg.Type {
			case websocket.TextMessage, websocket.BinaryMessage:
				logging.LogMessage(remoteAddr, "received", int(msg.Type), len(msg.Data))
				if err := d.Send(msg); err != nil {
					return
				}
			case websocket.CloseMessage:
				// Close handshake is handled by the dispatcher; nothing
				// left to do here.
			}
		}
	}()

	// Keep-alive pings, when configured.
	if cfg.PingInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.PingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := d.Send(websocket.Message{Type: websocket.PingMessage}); err != nil {
						return
					}
				case <-d.Done():
					return
				}
			}
		}()
	}

	if err := d.Run(ctx); err != nil {
		logging.Warn("session ended with error",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
	}
}
