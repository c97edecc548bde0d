// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// DownloadTask is one unit of acquisition work: fetch URL into File
// under the data directory. Tasks are immutable; the manifest builds
// them once at startup.
type DownloadTask struct {
	// URL is the source location of the dataset archive.
	URL string `json:"url" yaml:"url"`

	// File is the bare destination filename (no path separators).
	File string `json:"file" yaml:"file"`
}
