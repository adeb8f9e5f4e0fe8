package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// set at build time through `-ldflags "-X main.version=..."`.
var (
	version = "dev"
	commit  = "dev"
)

func userAgent() string {
	return "docker-hub-exporter/" + version
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the version of this CLI",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "docker-hub-exporter %s (%s)\n",
			version, commit)
	},
}
