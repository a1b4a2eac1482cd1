// Wsechod is a WebSocket echo/broadcast server built on the wsproto engine.
//
// It upgrades HTTP connections on the configured path, echoes every data
// message back to its sender via the dispatcher pump, and broadcasts
// join/leave notices to all connected clients.
//
// Usage:
//
//	wsechod serve [flags]
//
// See 'wsechod serve --help' for available options.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wsechod",
	Short: "WebSocket echo server",
	Long: `A standalone WebSocket echo and broadcast server.

Connections are upgraded per RFC 6455 and driven by the wsproto dispatcher:
data messages are echoed back to the sender, pings are answered
automatically, and the close handshake is completed in both directions.`,
	Version: version,
}

// Serve command flags.
var (
	configPath string
	listenAddr string
	logLevel   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the echo server",
	Long: `Start the WebSocket echo server.

Configuration is read from the optional YAML file given with --config and
overridden by flags. The server shuts down gracefully on SIGINT/SIGTERM,
closing every active WebSocket session with a going-away status.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "listen address (overrides config)")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
}
