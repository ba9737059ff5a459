package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// ServeCmd serves editor sessions on a Unix socket.
type ServeCmd struct {
	Socket string `help:"Unix socket path (default: $CODELET_SOCKET, $XDG_RUNTIME_DIR/codelet.sock, /tmp/codelet-<uid>.sock)"`
	Watch  bool   `help:"Reload when the config file or prompt changes" default:"true" negatable:""`
}

// Run executes the serve command.
func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	socketPath := c.Socket
	if socketPath == "" {
		socketPath = resolveSocketPath()
	}
	slog.Info("starting", "socket", socketPath, "model", cfg.Generation.Model)

	srv, err := NewServer(socketPath, cfg)
	if err != nil {
		return err
	}
	srv.configPath = cli.configPath()
	defer srv.Close()

	if c.Watch {
		if w, err := NewConfigWatcher(srv.configPath, srv.Reload); err != nil {
			slog.Warn("config watcher disabled", "error", err)
		} else {
			w.Start()
			defer w.Stop()
		}
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		srv.Close()
	}()

	slog.Info("ready")
	return srv.Serve()
}
