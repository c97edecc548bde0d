package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/kratt/internal/ledger"
	"github.com/pdiddy/kratt/internal/manifest"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report which manifest entries are present in the data directory",
	Long: `Status checks every manifest entry against the data directory without
touching the network. When the fetch ledger is available, the last
recorded outcome for each file is shown alongside.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().String("data-dir", "", "destination directory for dataset archives (default data/sources, or KRATT_DATA_DIR)")
	statusCmd.Flags().String("manifest", "", "YAML manifest overriding the built-in dataset list")
	statusCmd.Flags().String("ledger", defaultLedgerPath, "SQLite fetch ledger path (empty skips ledger lookup)")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	manifestPath, _ := cmd.Flags().GetString("manifest")
	ledgerPath, _ := cmd.Flags().GetString("ledger")

	tasks := manifest.Builtin()
	if manifestPath != "" {
		var err error
		tasks, err = manifest.Load(manifestPath)
		if err != nil {
			return err
		}
	}

	dir := resolveDataDir(dataDir)

	history := map[string]ledger.Entry{}
	if ledgerPath != "" {
		if store, err := ledger.Open(ledgerPath); err == nil {
			history, err = store.Latest(cmd.Context())
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: ledger query failed: %v\n", err)
			}
			store.Close()
		}
	}

	present := 0
	for _, task := range tasks {
		dest := filepath.Join(dir, task.File)
		info, err := os.Stat(dest)
		if err == nil && info.Size() > 0 {
			present++
			fmt.Printf("present  %-28s %12d bytes", task.File, info.Size())
		} else {
			fmt.Printf("missing  %-28s %12s      ", task.File, "-")
		}
		if e, ok := history[task.File]; ok {
			fmt.Printf("  last %s %s", e.Status, e.FetchedAt.Format("2006-01-02 15:04"))
		}
		fmt.Println()
	}

	fmt.Printf("\n%d of %d datasets present in %s\n", present, len(tasks), dir)
	return nil
}
