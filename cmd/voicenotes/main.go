package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	log.SetPrefix("[voicenotes] ")

	var configPath string
	root := &cobra.Command{
		Use:           "voicenotes",
		Short:         "Offline-first cache proxy and note store for VoiceNotes",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newInstallCmd(&configPath),
		newGenerationsCmd(&configPath),
		newNotesCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
