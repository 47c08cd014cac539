// Package discovery finds session export files in inbox directories.
//
// An inbox holds JSONL exports either directly or one level down in
// per-device subdirectories:
//
//	inbox/
//	  export-2024-05-01.jsonl
//	  pixel-7/
//	    usage.jsonl
//
// Hidden files are ignored. Results are ordered oldest first so exports are
// ingested in the order they were written.
//
//	d := discovery.New([]string{"~/.local/share/usage-ledger/inbox"}, log)
//	files, err := d.Discover()
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ExportExt is the extension of session export files.
const ExportExt = ".jsonl"

// Logger defines the logging interface used by the discovery package.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ExportFile represents a discovered export file.
type ExportFile struct {
	// Path is the path to the JSONL file.
	Path string

	// Dir is the directory containing the file.
	Dir string

	// Size is the file size in bytes.
	Size int64

	// ModTime is the last modification time.
	ModTime int64 // Unix timestamp
}

// Discoverer finds export files.
type Discoverer interface {
	// Discover scans every configured inbox. Missing inboxes are skipped
	// with a warning.
	Discover() ([]ExportFile, error)

	// DiscoverDir scans a single directory (no subdirectories).
	DiscoverDir(dir string) ([]ExportFile, error)
}

// discoverer implements the Discoverer interface.
type discoverer struct {
	inboxes []string
	logger  Logger
}

// New creates a new Discoverer over inboxes.
func New(inboxes []string, logger Logger) Discoverer {
	return &discoverer{
		inboxes: inboxes,
		logger:  logger,
	}
}

// Discover implements Discoverer.Discover.
func (d *discoverer) Discover() ([]ExportFile, error) {
	var all []ExportFile

	for _, inbox := range d.inboxes {
		expanded := expandHome(inbox)

		if _, err := os.Stat(expanded); err != nil {
			if os.IsNotExist(err) {
				d.logger.Warn("inbox not found, skipping", "path", expanded)
				continue
			}
			return nil, fmt.Errorf("failed to stat inbox %s: %w", expanded, err)
		}

		files, err := d.scanInbox(expanded)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inbox %s: %w", expanded, err)
		}

		all = append(all, files...)
	}

	sortOldestFirst(all)

	d.logger.Info("discovery complete", "files", len(all))
	return all, nil
}

// DiscoverDir implements Discoverer.DiscoverDir.
func (d *discoverer) DiscoverDir(dir string) ([]ExportFile, error) {
	expanded := expandHome(dir)

	if _, err := os.Stat(expanded); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrInboxNotFound, expanded)
		}
		return nil, fmt.Errorf("failed to stat directory %s: %w", expanded, err)
	}

	files, err := d.scanDir(expanded)
	if err != nil {
		return nil, err
	}

	sortOldestFirst(files)
	return files, nil
}

// scanInbox scans an inbox and its direct subdirectories.
func (d *discoverer) scanInbox(inbox string) ([]ExportFile, error) {
	files, err := d.scanDir(inbox)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(inbox)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || isHidden(entry.Name()) {
			continue
		}

		sub := filepath.Join(inbox, entry.Name())
		subFiles, err := d.scanDir(sub)
		if err != nil {
			d.logger.Warn("failed to scan device directory",
				"path", sub,
				"error", err)
			continue
		}

		files = append(files, subFiles...)
	}

	return files, nil
}

// scanDir lists export files directly inside dir.
func (d *discoverer) scanDir(dir string) ([]ExportFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	files := make([]ExportFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isExportFile(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			d.logger.Warn("failed to get file info",
				"path", path,
				"error", err)
			continue
		}

		files = append(files, ExportFile{
			Path:    path,
			Dir:     dir,
			Size:    info.Size(),
			ModTime: info.ModTime().Unix(),
		})
	}

	d.logger.Debug("scanned directory", "path", dir, "files_found", len(files))

	return files, nil
}

func sortOldestFirst(files []ExportFile) {
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].ModTime != files[j].ModTime {
			return files[i].ModTime < files[j].ModTime
		}
		return files[i].Path < files[j].Path
	})
}

// isExportFile reports whether name is a visible JSONL file.
func isExportFile(name string) bool {
	return !isHidden(name) && strings.HasSuffix(name, ExportExt) && len(name) > len(ExportExt)
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// expandHome expands ~ in file paths to the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	return filepath.Join(homeDir, path[2:])
}
