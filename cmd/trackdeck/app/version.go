// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trackdeck/trackdeck/pkg/versions"
)

func newVersionCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the version of trackdeck",
		Run: func(_ *cobra.Command, _ []string) {
			info := versions.GetVersionInfo()

			if jsonOutput {
				out, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					fmt.Printf("error formatting version info: %v\n", err)
					return
				}
				fmt.Println(string(out))
			} else {
				fmt.Printf("trackdeck %s\n", info.Version)
				fmt.Printf("Commit: %s\n", info.Commit)
				fmt.Printf("Built: %s\n", info.BuildDate)
				fmt.Printf("Go version: %s\n", info.GoVersion)
				fmt.Printf("Platform: %s\n", info.Platform)
			}
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version information as JSON")

	return cmd
}
