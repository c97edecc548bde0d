package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/kratt/internal/fetch"
	"github.com/pdiddy/kratt/internal/ledger"
	"github.com/pdiddy/kratt/internal/manifest"
	"github.com/pdiddy/kratt/internal/secrets"
	"github.com/pdiddy/kratt/pkg/types"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultDelay      = 1 * time.Second
	defaultUserAgent  = "kratt/0.1"
	defaultDataDir    = "data/sources"
	defaultLedgerPath = "data/index/fetch.db"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download missing dataset archives into the data directory",
	Long: `Fetch processes the dataset manifest in order. Entries whose destination
file already exists with non-zero size are skipped; missing entries are
downloaded with bounded retries. The run stops at the first entry that
cannot be fetched.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().String("data-dir", "", "destination directory for dataset archives (default data/sources, or KRATT_DATA_DIR)")
	fetchCmd.Flags().String("manifest", "", "YAML manifest overriding the built-in dataset list")
	fetchCmd.Flags().Duration("timeout", 0, "HTTP request timeout (default 60s)")
	fetchCmd.Flags().Duration("delay", 0, "delay between consecutive downloads (default 1s)")
	fetchCmd.Flags().Int("retries", 0, "retry attempts after a failed download (default 3)")
	fetchCmd.Flags().String("ledger", defaultLedgerPath, "SQLite fetch ledger path (empty disables recording)")

	rootCmd.AddCommand(fetchCmd)
}

// resolveDataDir applies precedence: flag, then config file or
// KRATT_DATA_DIR, then the default.
func resolveDataDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := viper.GetString("data_dir"); v != "" {
		return v
	}
	return defaultDataDir
}

func runFetch(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	manifestPath, _ := cmd.Flags().GetString("manifest")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout == 0 {
		timeout = defaultTimeout
	}
	delay, _ := cmd.Flags().GetDuration("delay")
	if delay == 0 {
		delay = defaultDelay
	}
	retries, _ := cmd.Flags().GetInt("retries")
	ledgerPath, _ := cmd.Flags().GetString("ledger")

	tasks := manifest.Builtin()
	if manifestPath != "" {
		var err error
		tasks, err = manifest.Load(manifestPath)
		if err != nil {
			return err
		}
	}

	cfg := types.FetchConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   timeout,
			UserAgent: defaultUserAgent,
		},
		DataDir:       resolveDataDir(dataDir),
		LedgerPath:    ledgerPath,
		RetryCount:    retries,
		DownloadDelay: delay,
		GitHubToken:   secretDefault(secrets.GitHubTokenKey, viper.GetString("github_token")),
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
	}

	// The ledger is audit-only; failing to open it downgrades to a
	// warning rather than blocking the fetch.
	var rec fetch.Recorder
	if cfg.LedgerPath != "" {
		store, err := ledger.Open(cfg.LedgerPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: fetch ledger unavailable: %v\n", err)
		} else {
			defer store.Close()
			rec = store
		}
	}

	return fetch.Run(cmd.Context(), client, tasks, cfg, rec, os.Stdout)
}
