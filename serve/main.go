// Command codeletd is the codelet daemon. It bridges editor completion
// requests to an LLM, either over a Unix domain socket carrying JSON lines or
// over the Language Server Protocol.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	codelet "github.com/Paranoid-AF/codelet"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// CLI is the root command structure for codeletd.
type CLI struct {
	Config   string `short:"c" help:"Path to config file (default: $CODELET_CONFIG_DIR/config.toml)" type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)" default:"info" env:"CODELET_LOG_LEVEL"`
	Verbose  bool   `short:"v" help:"Log every request and response (same as --log-level=debug)"`

	Serve      ServeCmd    `cmd:"" default:"1" help:"Serve editor sessions on a Unix socket"`
	LSP        LSPCmd      `cmd:"" name:"lsp" help:"Serve the Language Server Protocol on stdio or a websocket"`
	Complete   CompleteCmd `cmd:"" help:"Run one completion for a file and print it as TOML"`
	VersionCmd VersionCmd  `cmd:"" name:"version" help:"Print version"`
}

// VersionCmd prints the version.
type VersionCmd struct{}

// Run executes the version command.
func (c *VersionCmd) Run(cli *CLI) error {
	fmt.Println("codeletd", Version)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("codeletd"),
		kong.Description("LLM code-completion bridge"),
		kong.UsageOnError(),
	)

	level := cli.LogLevel
	if cli.Verbose {
		level = "debug"
	}
	setupLogger(level)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}

// setupLogger configures the default slog logger on stderr. stdout is
// reserved for the LSP stdio transport and command output.
func setupLogger(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// configPath returns the config file in use.
func (c *CLI) configPath() string {
	if c.Config != "" {
		return c.Config
	}
	return codelet.ConfigPath()
}

// loadConfig loads the config file and logs validation warnings.
func (c *CLI) loadConfig() (*codelet.Config, error) {
	path := c.configPath()
	cfg, err := codelet.LoadConfigFrom(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	for _, w := range codelet.ValidateConfig(cfg) {
		slog.Warn("config", "warning", w)
	}
	return cfg, nil
}

func resolveSocketPath() string {
	if path := os.Getenv("CODELET_SOCKET"); path != "" {
		return path
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/codelet.sock"
	}
	return fmt.Sprintf("/tmp/codelet-%d.sock", os.Getuid())
}
