// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the trackdeck server.
package main

import (
	"os"

	"github.com/trackdeck/trackdeck/cmd/trackdeck/app"
	"github.com/trackdeck/trackdeck/pkg/logger"
)

func main() {
	// Initialize the logger
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
