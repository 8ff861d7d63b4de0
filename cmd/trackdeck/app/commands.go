// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the trackdeck command-line
// application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trackdeck/trackdeck/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "trackdeck",
	DisableAutoGenTag: true,
	Short:             "trackdeck is the backend for the trackdeck music dashboard",
	Long: `trackdeck is the backend for the trackdeck music dashboard.

It links dashboard accounts to Spotify through the authorization code flow
with PKCE, keeps access tokens fresh server-side, and proxies Web API
requests so the browser never handles provider credentials.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates a new root command for the trackdeck CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
