// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import "fmt"

// FilesystemError reports that the destination directory could not be
// created. It is fatal: the run aborts immediately.
type FilesystemError struct {
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("creating directory %s: %v", e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// DownloadError reports a download that failed after all retry attempts.
// It is fatal: the run aborts without attempting the remaining tasks.
type DownloadError struct {
	URL  string
	Dest string
	Err  error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("downloading %s to %s: %v", e.URL, e.Dest, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }
