// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package manifest defines the list of dataset archives the fetch stage
// acquires: the Kanseki Repository text collections, catalog and glyph
// data, the CBDB biographical database, DILA authority databases, and
// the character tables the query tooling needs.
package manifest

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/kratt/pkg/types"
)

// builtin is the compiled-in manifest. Order matters: the fetcher
// processes entries sequentially and stops at the first failure, so the
// large corpus collections come first.
var builtin = []types.DownloadTask{
	{URL: "https://codeload.github.com/kr-shadow/KR1/zip/refs/heads/master", File: "KR1.zip"},
	{URL: "https://codeload.github.com/kr-shadow/KR2/zip/refs/heads/master", File: "KR2.zip"},
	{URL: "https://codeload.github.com/kr-shadow/KR3/zip/refs/heads/master", File: "KR3.zip"},
	{URL: "https://codeload.github.com/kr-shadow/KR4/zip/refs/heads/master", File: "KR4.zip"},
	{URL: "https://codeload.github.com/kr-shadow/KR5/zip/refs/heads/master", File: "KR5.zip"},
	{URL: "https://codeload.github.com/kr-shadow/KR6/zip/refs/heads/master", File: "KR6.zip"},
	{URL: "https://codeload.github.com/kanripo/KR-Catalog/zip/refs/heads/master", File: "KR-Catalog.zip"},
	{URL: "https://codeload.github.com/kanripo/KR-Gaiji/zip/refs/heads/master", File: "KR-Gaiji.zip"},
	{URL: "https://github.com/cbdb-project/cbdb-downloads/releases/download/20240208/CBDB_20240208_DATA2.zip", File: "CBDB_20240208_DATA2.zip"},
	{URL: "https://codeload.github.com/DILA-edu/Authority-Person/zip/refs/heads/master", File: "authority-person.zip"},
	{URL: "https://codeload.github.com/DILA-edu/Authority-Place/zip/refs/heads/master", File: "authority-place.zip"},
	{URL: "https://codeload.github.com/DILA-edu/Authority-Time/zip/refs/heads/master", File: "authority-time.zip"},
	{URL: "https://codeload.github.com/DILA-edu/Authority-Catalog/zip/refs/heads/master", File: "authority-catalog.zip"},
	{URL: "https://www.unicode.org/Public/UCD/latest/ucd/Unihan.zip", File: "Unihan.zip"},
	{URL: "https://github.com/BYVoid/OpenCC/archive/refs/tags/ver.1.1.7.zip", File: "opencc-1.1.7.zip"},
	{URL: "https://codeload.github.com/cjkvi/cjkvi-variants/zip/refs/heads/master", File: "cjkvi-variants.zip"},
}

// Builtin returns a copy of the compiled-in manifest.
func Builtin() []types.DownloadTask {
	tasks := make([]types.DownloadTask, len(builtin))
	copy(tasks, builtin)
	return tasks
}

// file is the on-disk representation of a manifest override.
type file struct {
	Datasets []types.DownloadTask `yaml:"datasets"`
}

// Load reads a manifest override from a YAML file and validates it.
func Load(path string) ([]types.DownloadTask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest file: %w", err)
	}
	var mf file
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parsing manifest file: %w", err)
	}
	if len(mf.Datasets) == 0 {
		return nil, fmt.Errorf("manifest file %s lists no datasets", path)
	}
	if err := Validate(mf.Datasets); err != nil {
		return nil, fmt.Errorf("manifest file %s: %w", path, err)
	}
	return mf.Datasets, nil
}

// Validate checks that every task has an http(s) URL and a unique bare
// destination filename.
func Validate(tasks []types.DownloadTask) error {
	seen := make(map[string]bool, len(tasks))
	for i, task := range tasks {
		if task.URL == "" {
			return fmt.Errorf("entry %d: empty url", i)
		}
		u, err := url.Parse(task.URL)
		if err != nil {
			return fmt.Errorf("entry %d: invalid url %q: %w", i, task.URL, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("entry %d: unsupported scheme %q in %q", i, u.Scheme, task.URL)
		}
		if task.File == "" {
			return fmt.Errorf("entry %d: empty file", i)
		}
		if strings.ContainsAny(task.File, `/\`) {
			return fmt.Errorf("entry %d: file %q must be a bare name", i, task.File)
		}
		if seen[task.File] {
			return fmt.Errorf("entry %d: duplicate file %q", i, task.File)
		}
		seen[task.File] = true
	}
	return nil
}
