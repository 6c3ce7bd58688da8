package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"villagesim.ai/internal/sim/catalogs"
	"villagesim.ai/internal/sim/tuning"
)

// Global flags
var (
	configDir  string
	tuningPath string
	dataDir    string
	seedFlag   int64
)

var rootCmd = &cobra.Command{
	Use:   "villagesim",
	Short: "Deterministic village colony simulation",
	Long: `villagesim runs a small colony of villagers who pick jobs, reserve
resources and carry out multi-step plans on a tile map.

  serve     run the simulation in real time with an observer websocket
  simulate  step a fresh or resumed world headless and print a summary
  inspect   print the contents of a snapshot or index database`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "configs", "", "catalog directory with resources/buildings/crops json (default: built-in catalogs)")
	rootCmd.PersistentFlags().StringVar(&tuningPath, "tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml if present, else built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "./data", "runtime data directory")
	rootCmd.PersistentFlags().Int64Var(&seedFlag, "seed", 0, "world seed override (fresh worlds only)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, tag string) *log.Logger {
	return log.New(w, "["+tag+"] ", log.LstdFlags|log.Lmicroseconds)
}

// loadSetup resolves the catalogs and tuning the commands run with.
func loadSetup() (*catalogs.Catalogs, tuning.Tuning, error) {
	var (
		cats *catalogs.Catalogs
		err  error
	)
	if strings.TrimSpace(configDir) == "" {
		cats, err = catalogs.Default()
	} else {
		cats, err = catalogs.Load(configDir)
	}
	if err != nil {
		return nil, tuning.Tuning{}, fmt.Errorf("load catalogs: %w", err)
	}

	tp := strings.TrimSpace(tuningPath)
	if tp == "" && configDir != "" {
		candidate := filepath.Join(configDir, "tuning.yaml")
		if _, err := os.Stat(candidate); err == nil {
			tp = candidate
		}
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		return nil, tuning.Tuning{}, fmt.Errorf("load tuning: %w", err)
	}
	if seedFlag != 0 {
		tune.Seed = seedFlag
	}
	return cats, tune, nil
}

func runDir(runID string) string {
	return filepath.Join(dataDir, "runs", runID)
}
