// Package cmd provides the CLI commands for Sentinel Gate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/Sentinelgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sentinel-gate",
	Short: "Sentinel Gate - layer 7 application gateway",
	Long: `Sentinel Gate terminates inbound HTTP/1.1, HTTP/2, TLS, HBONE-over-mTLS
and raw TCP traffic and proxies it to backends through a programmable
policy pipeline.

Quick start:
  1. Create a config file: sentinel-gate.yaml
  2. Run: sentinel-gate serve

Configuration:
  Config is loaded from sentinel-gate.yaml in the current directory,
  $HOME/.sentinel-gate/, or /etc/sentinel-gate/.

  Environment variables can override config values with the SENTINEL_GATE_
  prefix. Example: SENTINEL_GATE_ADMIN_ADDR=:9090

Commands:
  serve            Run the gateway data plane
  hash-admin-key   Hash an admin API key for admin.api_key_hash
  version          Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./sentinel-gate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
