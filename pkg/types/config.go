package types

import "time"

// HTTPConfig holds shared HTTP settings for network-facing operations.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "kratt/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// FetchConfig holds settings for the dataset fetch stage. The cmd layer
// resolves flags, config file, and environment into one FetchConfig and
// passes it in explicitly; the fetcher itself never reads the environment.
type FetchConfig struct {
	HTTPConfig `yaml:",inline"`

	// DataDir is the directory that holds downloaded dataset archives.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// LedgerPath is the SQLite fetch ledger location. Empty disables
	// ledger recording.
	LedgerPath string `json:"ledger_path,omitempty" yaml:"ledger_path,omitempty"`

	// RetryCount is the number of retry attempts after a failed download
	// (default 3, so 4 attempts total).
	RetryCount int `json:"retry_count" yaml:"retry_count"`

	// DownloadDelay is the delay between consecutive downloads (default 1s).
	DownloadDelay time.Duration `json:"download_delay" yaml:"download_delay"`

	// GitHubToken, when set, is sent as a bearer token on requests to
	// GitHub hosts. Most manifest entries are GitHub archives and the
	// unauthenticated rate limit is easy to hit.
	GitHubToken string `json:"github_token,omitempty" yaml:"github_token,omitempty"`
}
