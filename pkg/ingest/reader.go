package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/parser"
)

// reader implements the Reader interface.
type reader struct {
	store  PositionStore
	parser parser.Parser
	logger logger.Logger
	config ReaderConfig

	mu     sync.RWMutex
	closed bool
}

// NewReader creates a new incremental file reader.
func NewReader(cfg ReaderConfig, log logger.Logger) (Reader, error) {
	if cfg.PositionStore == nil {
		return nil, fmt.Errorf("%w: position store", ErrMissingDependency)
	}

	if cfg.Parser == nil {
		return nil, fmt.Errorf("%w: parser", ErrMissingDependency)
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = parser.MaxFileSize
	}

	log = log.Named("ingest")
	log.Debug("incremental reader created",
		"max_retries", cfg.MaxRetries,
		"retry_delay", cfg.RetryDelay,
		"max_file_size", cfg.MaxFileSize)

	return &reader{
		store:  cfg.PositionStore,
		parser: cfg.Parser,
		logger: log,
		config: cfg,
	}, nil
}

// Read implements Reader.Read.
func (r *reader) Read(ctx context.Context, path string) (*parser.Batch, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	offset, err := r.store.Position(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}

	r.logger.Debug("reading file", "path", path, "offset", offset)

	batch, err := r.readWithRetry(ctx, path, offset)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("read complete",
		"path", path,
		"tuples", len(batch.Tuples),
		"skipped", batch.Skipped,
		"new_offset", batch.Offset)

	return batch, nil
}

// ReadFrom implements Reader.ReadFrom.
func (r *reader) ReadFrom(ctx context.Context, path string, offset int64) (*parser.Batch, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	if offset < 0 {
		return nil, ErrInvalidOffset
	}

	return r.readWithRetry(ctx, path, offset)
}

// Commit implements Reader.Commit.
func (r *reader) Commit(path string, offset int64) error {
	return r.CommitTo(r.store, path, offset)
}

// CommitTo implements Reader.CommitTo.
func (r *reader) CommitTo(ps PositionStore, path string, offset int64) error {
	if err := r.checkOpen(); err != nil {
		return err
	}

	if offset < 0 {
		return ErrInvalidOffset
	}

	if err := ps.SetPosition(path, offset); err != nil {
		return fmt.Errorf("failed to update position: %w", err)
	}
	return nil
}

// Reset implements Reader.Reset.
func (r *reader) Reset(path string) error {
	if err := r.checkOpen(); err != nil {
		return err
	}

	if err := r.store.ResetPosition(path); err != nil {
		return fmt.Errorf("failed to reset position: %w", err)
	}

	r.logger.Info("position reset", "path", path)
	return nil
}

// Close implements Reader.Close.
func (r *reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	return nil
}

func (r *reader) checkOpen() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrReaderClosed
	}
	return nil
}

// readWithRetry reads a file with retry logic.
func (r *reader) readWithRetry(ctx context.Context, path string, offset int64) (*parser.Batch, error) {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoffMultiplier := 1 << (attempt - 1) // nolint:gosec // Attempt is bounded by MaxRetries
			delay := r.config.RetryDelay * time.Duration(backoffMultiplier)
			r.logger.Debug("retrying read",
				"path", path,
				"attempt", attempt,
				"delay", delay)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		batch, err := r.readFile(ctx, path, offset)
		if err == nil {
			return batch, nil
		}

		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}

		r.logger.Warn("read attempt failed",
			"path", path,
			"attempt", attempt,
			"error", err)
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// readFile reads a file from the specified offset.
func (r *reader) readFile(ctx context.Context, path string, offset int64) (*parser.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound
		}
		if os.IsPermission(err) {
			return nil, ErrPermissionDenied
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	fileSize := info.Size()
	if fileSize > r.config.MaxFileSize {
		return nil, ErrFileTooLarge
	}

	if offset > fileSize {
		r.logger.Warn("file was truncated, resetting offset",
			"path", path,
			"old_offset", offset,
			"file_size", fileSize)
		offset = 0
	}

	if offset == fileSize {
		return &parser.Batch{Offset: offset}, nil
	}

	batch, err := r.parser.ParseFile(path, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}

	return batch, nil
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrFileNotFound):
		return true // File might be created shortly.
	case errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrFileTooLarge),
		errors.Is(err, parser.ErrFileTooLarge),
		errors.Is(err, ErrInvalidOffset),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}
