// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch downloads the dataset archives listed in the manifest
// into the data directory. A non-empty file at a task's destination
// counts as already fetched and is never overwritten, so repeated runs
// are no-ops for completed downloads.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/kratt/internal/httputil"
	"github.com/pdiddy/kratt/pkg/types"
)

// Status is the terminal state of one task.
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
)

// Outcome describes how one task resolved.
type Outcome struct {
	Task   types.DownloadTask
	Dest   string
	Size   int64
	Status Status
	When   time.Time
}

// Recorder receives task outcomes. The SQLite fetch ledger implements
// it; a nil Recorder disables recording.
type Recorder interface {
	Record(ctx context.Context, out Outcome) error
}

// EnsureDir creates the destination directory and any parents. It is
// idempotent.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return &FilesystemError{Path: path, Err: err}
	}
	return nil
}

// FetchIfMissing ensures the task's destination file exists. A file
// with non-zero size is left untouched and no network call is made; a
// zero-byte file is treated as missing and fetched again. Downloads go
// through a temp file and an atomic rename, so a failed download never
// leaves a partial file that would pass the non-empty check later.
func FetchIfMissing(ctx context.Context, client *http.Client, task types.DownloadTask, cfg types.FetchConfig, w io.Writer) (Outcome, error) {
	dest := filepath.Join(cfg.DataDir, task.File)
	out := Outcome{Task: task, Dest: dest, When: time.Now().UTC()}

	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		fmt.Fprintf(w, "skip: %s\n", dest)
		out.Status = StatusSkipped
		out.Size = info.Size()
		return out, nil
	}

	fmt.Fprintf(w, "downloading: %s\n", dest)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, nil)
	if err != nil {
		out.Status = StatusFailed
		return out, &DownloadError{URL: task.URL, Dest: dest, Err: err}
	}
	req.Header.Set("User-Agent", cfg.UserAgent)
	if cfg.GitHubToken != "" && isGitHubHost(req.URL.Host) {
		req.Header.Set("Authorization", "Bearer "+cfg.GitHubToken)
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, cfg.RetryCount)
	if err != nil {
		out.Status = StatusFailed
		return out, &DownloadError{URL: task.URL, Dest: dest, Err: err}
	}
	defer resp.Body.Close()

	size, err := writeAtomic(dest, resp.Body)
	if err != nil {
		out.Status = StatusFailed
		return out, &DownloadError{URL: task.URL, Dest: dest, Err: err}
	}

	out.Status = StatusDownloaded
	out.Size = size
	return out, nil
}

// Run executes the manifest strictly sequentially, in order, stopping
// at the first failure. On full success it prints "done". Outcomes go
// to rec when it is non-nil; ledger trouble is a warning, not a failure.
func Run(ctx context.Context, client *http.Client, tasks []types.DownloadTask, cfg types.FetchConfig, rec Recorder, w io.Writer) error {
	if err := EnsureDir(cfg.DataDir); err != nil {
		return err
	}

	prevDownloaded := false
	for _, task := range tasks {
		if prevDownloaded && cfg.DownloadDelay > 0 {
			time.Sleep(cfg.DownloadDelay)
		}

		out, err := FetchIfMissing(ctx, client, task, cfg, w)
		record(ctx, rec, out, w)
		if err != nil {
			return err
		}
		prevDownloaded = out.Status == StatusDownloaded
	}

	fmt.Fprintln(w, "done")
	return nil
}

func record(ctx context.Context, rec Recorder, out Outcome, w io.Writer) {
	if rec == nil {
		return
	}
	if err := rec.Record(ctx, out); err != nil {
		fmt.Fprintf(w, "  warning: ledger write failed: %v\n", err)
	}
}

// writeAtomic copies r to destPath via a temp file in the same
// directory, renaming on success and removing the temp file on failure.
func writeAtomic(destPath string, r io.Reader) (int64, error) {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".fetch-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	n, copyErr := io.Copy(tmpFile, r)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("renaming temp file: %w", err)
	}
	return n, nil
}

// isGitHubHost reports whether host belongs to GitHub, where an
// optional token raises the unauthenticated rate limit.
func isGitHubHost(host string) bool {
	host = strings.ToLower(host)
	return host == "github.com" ||
		strings.HasSuffix(host, ".github.com") ||
		strings.HasSuffix(host, ".githubusercontent.com")
}
