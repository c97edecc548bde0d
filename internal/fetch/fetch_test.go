// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pdiddy/kratt/internal/httputil"
	"github.com/pdiddy/kratt/pkg/types"
)

func init() {
	// Use a tiny retry delay so failure tests finish quickly.
	httputil.RetryDelay = 1 * time.Millisecond
}

const fakeZipContent = "PK\x03\x04 fake archive"

// countingServer serves fake archives under /data/ and records how many
// requests each path received.
type countingServer struct {
	*httptest.Server
	mu    sync.Mutex
	calls map[string]int
}

func newCountingServer(t *testing.T) *countingServer {
	t.Helper()
	cs := &countingServer{calls: make(map[string]int)}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		cs.calls[r.URL.Path]++
		cs.mu.Unlock()
		switch {
		case strings.HasPrefix(r.URL.Path, "/data/"):
			w.Header().Set("Content-Type", "application/zip")
			fmt.Fprint(w, fakeZipContent)
		case strings.HasPrefix(r.URL.Path, "/empty/"):
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(cs.Server.Close)
	return cs
}

func (cs *countingServer) count(path string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.calls[path]
}

func testConfig(dir string) types.FetchConfig {
	return types.FetchConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   10 * time.Second,
			UserAgent: "kratt-test/0.1",
		},
		DataDir:    dir,
		RetryCount: 3,
	}
}

func TestFetchIfMissingDownloads(t *testing.T) {
	cs := newCountingServer(t)
	dir := t.TempDir()
	cfg := testConfig(dir)
	var buf bytes.Buffer

	task := types.DownloadTask{URL: cs.URL + "/data/KR1.zip", File: "KR1.zip"}
	out, err := FetchIfMissing(context.Background(), cs.Client(), task, cfg, &buf)
	if err != nil {
		t.Fatalf("FetchIfMissing: %v", err)
	}
	if out.Status != StatusDownloaded {
		t.Errorf("Status = %q, want %q", out.Status, StatusDownloaded)
	}
	if out.Size != int64(len(fakeZipContent)) {
		t.Errorf("Size = %d, want %d", out.Size, len(fakeZipContent))
	}

	data, err := os.ReadFile(filepath.Join(dir, "KR1.zip"))
	if err != nil {
		t.Fatalf("reading download: %v", err)
	}
	if string(data) != fakeZipContent {
		t.Errorf("content = %q, want %q", string(data), fakeZipContent)
	}
	if !strings.Contains(buf.String(), "downloading: ") {
		t.Error("output should contain 'downloading: '")
	}
	if cs.count("/data/KR1.zip") != 1 {
		t.Errorf("server calls = %d, want 1", cs.count("/data/KR1.zip"))
	}
}

func TestFetchIfMissingSkipsNonEmpty(t *testing.T) {
	cs := newCountingServer(t)
	dir := t.TempDir()
	cfg := testConfig(dir)

	dest := filepath.Join(dir, "KR1.zip")
	if err := os.WriteFile(dest, bytes.Repeat([]byte("x"), 100), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	task := types.DownloadTask{URL: cs.URL + "/data/KR1.zip", File: "KR1.zip"}
	out, err := FetchIfMissing(context.Background(), cs.Client(), task, cfg, &buf)
	if err != nil {
		t.Fatalf("FetchIfMissing: %v", err)
	}
	if out.Status != StatusSkipped {
		t.Errorf("Status = %q, want %q", out.Status, StatusSkipped)
	}
	if out.Size != 100 {
		t.Errorf("Size = %d, want 100", out.Size)
	}
	if !strings.Contains(buf.String(), "skip: "+dest) {
		t.Errorf("output = %q, want 'skip: %s'", buf.String(), dest)
	}
	if cs.count("/data/KR1.zip") != 0 {
		t.Errorf("server calls = %d, want 0 (no network on skip)", cs.count("/data/KR1.zip"))
	}
}

func TestFetchIfMissingRefetchesZeroByteFile(t *testing.T) {
	cs := newCountingServer(t)
	dir := t.TempDir()
	cfg := testConfig(dir)

	dest := filepath.Join(dir, "KR1.zip")
	if err := os.WriteFile(dest, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	task := types.DownloadTask{URL: cs.URL + "/data/KR1.zip", File: "KR1.zip"}
	out, err := FetchIfMissing(context.Background(), cs.Client(), task, cfg, &buf)
	if err != nil {
		t.Fatalf("FetchIfMissing: %v", err)
	}
	if out.Status != StatusDownloaded {
		t.Errorf("Status = %q, want %q", out.Status, StatusDownloaded)
	}
	if cs.count("/data/KR1.zip") != 1 {
		t.Errorf("server calls = %d, want 1", cs.count("/data/KR1.zip"))
	}
}

func TestFetchIfMissingRetriesThenFails(t *testing.T) {
	cs := newCountingServer(t)
	dir := t.TempDir()
	cfg := testConfig(dir)
	var buf bytes.Buffer

	task := types.DownloadTask{URL: cs.URL + "/missing/a.zip", File: "a.zip"}
	_, err := FetchIfMissing(context.Background(), cs.Client(), task, cfg, &buf)
	if err == nil {
		t.Fatal("expected error")
	}

	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("error = %T, want *DownloadError", err)
	}
	if dlErr.URL != task.URL {
		t.Errorf("DownloadError.URL = %q, want %q", dlErr.URL, task.URL)
	}
	// 1 initial + 3 retries = 4 attempts.
	if cs.count("/missing/a.zip") != 4 {
		t.Errorf("server calls = %d, want 4", cs.count("/missing/a.zip"))
	}
	// No partial file may survive a failed download.
	if _, statErr := os.Stat(filepath.Join(dir, "a.zip")); !os.IsNotExist(statErr) {
		t.Errorf("destination should not exist after failure, stat err = %v", statErr)
	}
}

func TestFetchIfMissingConnectionRefused(t *testing.T) {
	// A server that is already closed gives connection refused.
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	dir := t.TempDir()
	cfg := testConfig(dir)
	var buf bytes.Buffer

	task := types.DownloadTask{URL: url + "/a.zip", File: "a.zip"}
	_, err := FetchIfMissing(context.Background(), &http.Client{Timeout: 5 * time.Second}, task, cfg, &buf)

	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("error = %v, want *DownloadError", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "a.zip")); !os.IsNotExist(statErr) {
		t.Error("destination should not exist after failure")
	}
}

func TestFetchIfMissingLeavesNoTempFiles(t *testing.T) {
	cs := newCountingServer(t)
	dir := t.TempDir()
	cfg := testConfig(dir)
	var buf bytes.Buffer

	task := types.DownloadTask{URL: cs.URL + "/data/KR1.zip", File: "KR1.zip"}
	if _, err := FetchIfMissing(context.Background(), cs.Client(), task, cfg, &buf); err != nil {
		t.Fatalf("FetchIfMissing: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".fetch-") {
			t.Errorf("temp file %s left behind", entry.Name())
		}
	}
}

func TestFetchIfMissingGitHubToken(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, fakeZipContent)
	}))
	defer ts.Close()

	cfg := testConfig(t.TempDir())
	cfg.GitHubToken = "ghp_test123"
	var buf bytes.Buffer

	// httptest serves on 127.0.0.1, which is not a GitHub host: no token.
	task := types.DownloadTask{URL: ts.URL + "/a.zip", File: "a.zip"}
	if _, err := FetchIfMissing(context.Background(), ts.Client(), task, cfg, &buf); err != nil {
		t.Fatalf("FetchIfMissing: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want empty for non-GitHub host", gotAuth)
	}
}

func TestIsGitHubHost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"github.com", true},
		{"codeload.github.com", true},
		{"objects.githubusercontent.com", true},
		{"raw.githubusercontent.com", true},
		{"www.unicode.org", false},
		{"evilgithub.com", false},
		{"127.0.0.1:8080", false},
	}
	for _, tt := range tests {
		if got := isGitHubHost(tt.host); got != tt.want {
			t.Errorf("isGitHubHost(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data", "sources")
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	// Idempotent.
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir second call: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("stat %s: %v", dir, err)
	}
}

func TestEnsureDirFailure(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := EnsureDir(filepath.Join(blocker, "child"))
	var fsErr *FilesystemError
	if !errors.As(err, &fsErr) {
		t.Fatalf("error = %v, want *FilesystemError", err)
	}
}

// memRecorder captures outcomes for assertions.
type memRecorder struct {
	outcomes []Outcome
	fail     bool
}

func (r *memRecorder) Record(_ context.Context, out Outcome) error {
	if r.fail {
		return errors.New("ledger closed")
	}
	r.outcomes = append(r.outcomes, out)
	return nil
}

func TestRunDownloadsInOrder(t *testing.T) {
	cs := newCountingServer(t)
	dir := filepath.Join(t.TempDir(), "sources")
	cfg := testConfig(dir)
	var buf bytes.Buffer

	tasks := []types.DownloadTask{
		{URL: cs.URL + "/data/KR1.zip", File: "KR1.zip"},
		{URL: cs.URL + "/data/KR2.zip", File: "KR2.zip"},
	}
	rec := &memRecorder{}
	if err := Run(context.Background(), cs.Client(), tasks, cfg, rec, &buf); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, name := range []string{"KR1.zip", "KR2.zip"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	if !strings.HasSuffix(strings.TrimSpace(buf.String()), "done") {
		t.Errorf("output should end with 'done', got %q", buf.String())
	}
	if len(rec.outcomes) != 2 {
		t.Fatalf("recorded outcomes = %d, want 2", len(rec.outcomes))
	}
	if rec.outcomes[0].Task.File != "KR1.zip" || rec.outcomes[1].Task.File != "KR2.zip" {
		t.Errorf("outcomes out of manifest order: %+v", rec.outcomes)
	}
}

func TestRunIdempotent(t *testing.T) {
	cs := newCountingServer(t)
	dir := filepath.Join(t.TempDir(), "sources")
	cfg := testConfig(dir)

	tasks := []types.DownloadTask{
		{URL: cs.URL + "/data/KR1.zip", File: "KR1.zip"},
		{URL: cs.URL + "/data/KR2.zip", File: "KR2.zip"},
	}

	var first bytes.Buffer
	if err := Run(context.Background(), cs.Client(), tasks, cfg, nil, &first); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	var second bytes.Buffer
	if err := Run(context.Background(), cs.Client(), tasks, cfg, nil, &second); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	// The second run must not touch the network.
	if cs.count("/data/KR1.zip") != 1 || cs.count("/data/KR2.zip") != 1 {
		t.Errorf("calls = %d/%d, want 1/1",
			cs.count("/data/KR1.zip"), cs.count("/data/KR2.zip"))
	}
	if strings.Count(second.String(), "skip: ") != 2 {
		t.Errorf("second run output = %q, want two skip lines", second.String())
	}
}

func TestRunFailFast(t *testing.T) {
	cs := newCountingServer(t)
	dir := filepath.Join(t.TempDir(), "sources")
	cfg := testConfig(dir)
	var buf bytes.Buffer

	tasks := []types.DownloadTask{
		{URL: cs.URL + "/data/KR1.zip", File: "KR1.zip"},
		{URL: cs.URL + "/missing/broken.zip", File: "broken.zip"},
		{URL: cs.URL + "/data/KR2.zip", File: "KR2.zip"},
	}
	rec := &memRecorder{}
	err := Run(context.Background(), cs.Client(), tasks, cfg, rec, &buf)

	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("error = %v, want *DownloadError", err)
	}
	// The task after the failure is never attempted.
	if cs.count("/data/KR2.zip") != 0 {
		t.Errorf("KR2 calls = %d, want 0 after fail-fast", cs.count("/data/KR2.zip"))
	}
	if strings.Contains(buf.String(), "done") {
		t.Error("failed run must not print 'done'")
	}
	if len(rec.outcomes) != 2 {
		t.Fatalf("recorded outcomes = %d, want 2 (success + failure)", len(rec.outcomes))
	}
	if rec.outcomes[1].Status != StatusFailed {
		t.Errorf("last outcome status = %q, want %q", rec.outcomes[1].Status, StatusFailed)
	}
}

func TestRunCreatesDataDir(t *testing.T) {
	cs := newCountingServer(t)
	dir := filepath.Join(t.TempDir(), "nested", "data", "sources")
	cfg := testConfig(dir)
	var buf bytes.Buffer

	tasks := []types.DownloadTask{{URL: cs.URL + "/data/a.zip", File: "a.zip"}}
	if err := Run(context.Background(), cs.Client(), tasks, cfg, nil, &buf); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.zip")); err != nil {
		t.Errorf("missing a.zip: %v", err)
	}
}

func TestRunRecorderFailureIsWarning(t *testing.T) {
	cs := newCountingServer(t)
	dir := filepath.Join(t.TempDir(), "sources")
	cfg := testConfig(dir)
	var buf bytes.Buffer

	tasks := []types.DownloadTask{{URL: cs.URL + "/data/a.zip", File: "a.zip"}}
	rec := &memRecorder{fail: true}
	if err := Run(context.Background(), cs.Client(), tasks, cfg, rec, &buf); err != nil {
		t.Fatalf("Run should not fail on ledger errors: %v", err)
	}
	if !strings.Contains(buf.String(), "warning: ledger write failed") {
		t.Errorf("output = %q, want ledger warning", buf.String())
	}
}
