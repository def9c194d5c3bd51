// Package cli implements the cardhaul command line interface
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped by the build
var Version = "dev"

var cfgPath string

// NewRootCommand builds the cardhaul command tree
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "cardhaul",
		Short:   "Offload media from memory cards into a dated library",
		Version: Version,
		Long: `Cardhaul scans a removable volume for photos, videos, and audio,
derives dated destination paths, deduplicates against the library, and
copies everything over with verification.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath(),
		"path to the configuration file")

	root.AddCommand(newImportCommand())
	root.AddCommand(newVolumesCommand())
	root.AddCommand(newHistoryCommand())
	return root
}

// Execute runs the CLI and exits non-zero on error
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/cardhaul/config.yaml"
	}
	return ""
}
