//go:build profiling

package cmd

import (
	"log/slog"
	"os"
	"runtime/pprof"

	"github.com/spf13/cobra"
)

func init() {
	var profilePath string
	RootCmd.PersistentFlags().StringVar(&profilePath, "cpuprofile", "", "enables pprof profiling and sets its output path")

	pprofEnabled := false
	originalPersistentPreRunE := RootCmd.PersistentPreRunE
	RootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if profilePath == "" {
			return nil
		}

		f, err := os.Create(profilePath)
		if err != nil {
			return err
		}

		slog.Info("Enabling CPU profiling", slog.String("path", profilePath))
		err = pprof.StartCPUProfile(f)
		if err != nil {
			return err
		}

		pprofEnabled = true

		if originalPersistentPreRunE != nil {
			return originalPersistentPreRunE(cmd, args)
		}

		return nil
	}

	originalPersistentPostRun := RootCmd.PersistentPostRun
	RootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if pprofEnabled {
			slog.Info("Shutting down CPU profiling")
			pprof.StopCPUProfile()
		}

		if originalPersistentPostRun != nil {
			originalPersistentPostRun(cmd, args)
		}
	}
}
