package main

import (
	"hearcheck-go/internal/screening"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var projectRoot string

	rootCmd := &cobra.Command{
		Use:   "hearcheck",
		Short: "Adaptive pure-tone hearing screening server",
		Long: `hearcheck runs a self-guided pure-tone hearing screening: an adaptive
staircase per frequency and ear, persisted per participant, with an
asymmetry summary at the end.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&projectRoot, "root", ".", "project root holding config/ and logs/")

	rootCmd.AddCommand(newServeCmd(&projectRoot), newSimulateCmd(&projectRoot))
	return rootCmd
}

// loadProtocol returns the default protocol unless a protocol file is
// configured. Relative paths are resolved against the project root.
func loadProtocol(projectRoot, file string) (screening.Protocol, error) {
	if file == "" {
		return screening.DefaultProtocol(), nil
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(projectRoot, file)
	}
	return screening.LoadProtocol(file)
}
