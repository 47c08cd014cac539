package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/0xmhha/usage-ledger/pkg/logger"
)

const (
	// MaxFileSize is the default maximum export file size (100MB).
	MaxFileSize = 100 * 1024 * 1024

	// MaxLineLength is the maximum allowed line length (1MB).
	MaxLineLength = 1024 * 1024

	// MaxReportedErrors caps Batch.Errors.
	MaxReportedErrors = 20
)

// Parser parses JSONL session exports.
type Parser interface {
	// ParseFile reads complete lines of path starting at offset.
	//
	// Malformed and invalid lines are skipped and counted in the batch.
	// The returned Batch.Offset can be passed back for incremental reads.
	//
	// Thread-safety: This method is safe to call concurrently with different files.
	ParseFile(path string, offset int64) (*Batch, error)

	// ParseReader reads complete lines from r. Offsets in the batch are
	// relative to the start of r.
	ParseReader(r io.Reader) (*Batch, error)

	// ParseLine parses and validates one line (without newline).
	ParseLine(line []byte) (SessionTuple, error)
}

// Config contains parser configuration.
type Config struct {
	// MaxFileSize rejects larger files. Default: MaxFileSize.
	MaxFileSize int64
}

// jsonlParser implements the Parser interface.
type jsonlParser struct {
	maxFileSize int64
	logger      logger.Logger
}

// New creates a parser with default limits.
func New(log logger.Logger) Parser {
	return NewWithConfig(Config{}, log)
}

// NewWithConfig creates a parser with cfg.
func NewWithConfig(cfg Config, log logger.Logger) Parser {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = MaxFileSize
	}
	return &jsonlParser{
		maxFileSize: cfg.MaxFileSize,
		logger:      log.Named("parser"),
	}
}

// ParseFile implements Parser.ParseFile.
func (p *jsonlParser) ParseFile(path string, offset int64) (*Batch, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	if info.Size() > p.maxFileSize {
		return nil, fmt.Errorf("%w: size=%d, max=%d",
			ErrFileTooLarge, info.Size(), p.maxFileSize)
	}

	// #nosec G304: path is validated by caller
	f, err := os.Open(path) // nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			p.logger.Warn("failed to close file", "path", path, "error", closeErr)
		}
	}()

	if offset > 0 {
		if _, seekErr := f.Seek(offset, io.SeekStart); seekErr != nil {
			return nil, fmt.Errorf("failed to seek to offset %d: %w", offset, seekErr)
		}
	}

	batch, err := p.ParseReader(f)
	if batch != nil {
		batch.Offset += offset
	}
	if err != nil {
		return batch, err
	}

	if batch.Skipped > 0 {
		p.logger.Warn("skipped malformed lines",
			"path", path,
			"skipped", batch.Skipped,
			"lines", batch.Lines)
	}

	return batch, nil
}

// ParseReader implements Parser.ParseReader.
func (p *jsonlParser) ParseReader(r io.Reader) (*Batch, error) {
	batch := &Batch{Tuples: make([]SessionTuple, 0, 100)}
	reader := bufio.NewReaderSize(r, 64*1024)

	for {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			// A trailing line without newline may still be being written.
			return batch, nil
		}
		if err != nil {
			return batch, fmt.Errorf("read error after line %d: %w", batch.Lines, err)
		}

		batch.Lines++
		batch.Offset += int64(len(line))

		line = bytes.TrimRight(line, "\r\n")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		if len(line) > MaxLineLength {
			p.skip(batch, &ParseError{Line: batch.Lines, Data: string(line[:100]), Err: ErrLineTooLong})
			continue
		}

		tuple, parseErr := p.ParseLine(line)
		if parseErr != nil {
			p.skip(batch, withLine(parseErr, batch.Lines))
			continue
		}

		batch.Tuples = append(batch.Tuples, tuple)
	}
}

// ParseLine implements Parser.ParseLine.
func (p *jsonlParser) ParseLine(line []byte) (SessionTuple, error) {
	var tuple SessionTuple
	if err := json.Unmarshal(line, &tuple); err != nil {
		return SessionTuple{}, &ParseError{
			Data: string(line),
			Err:  fmt.Errorf("%w: %v", ErrMalformedJSON, err),
		}
	}

	if err := tuple.Validate(); err != nil {
		name := tuple.Package
		if tuple.IsTimer() {
			name = tuple.Category
		}
		return SessionTuple{}, &ValidationError{Package: name, Err: err}
	}

	if tuple.Kind == "" {
		tuple.Kind = KindApp
	}

	return tuple, nil
}

func (p *jsonlParser) skip(batch *Batch, err error) {
	batch.Skipped++
	if len(batch.Errors) < MaxReportedErrors {
		batch.Errors = append(batch.Errors, err)
	}
	p.logger.Debug("skipping line", "error", err)
}

// withLine sets the line number on parser error types.
func withLine(err error, line int) error {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		parseErr.Line = line
		return parseErr
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		validationErr.Line = line
		return validationErr
	}

	return err
}
