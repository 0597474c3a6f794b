package store

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// ExportVersion is written into every export document.
const ExportVersion = 1

// Format selects the export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatZstd Format = "zstd"
	FormatGzip Format = "gzip"
)

// ErrUnknownFormat is returned by ParseFormat.
var ErrUnknownFormat = errors.New("unknown export format")

// sniffLen is how much of an export DetectFormat looks at.
const sniffLen = 512

// ParseFormat maps a user-supplied name to a Format. Empty means JSON.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "", "json":
		return FormatJSON, nil
	case "zstd", "zst":
		return FormatZstd, nil
	case "gzip", "gz":
		return FormatGzip, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatZstd:
		return "application/zstd"
	case FormatGzip:
		return "application/gzip"
	default:
		return "application/json"
	}
}

// Extension returns the file name suffix for the format.
func (f Format) Extension() string {
	switch f {
	case FormatZstd:
		return ".json.zst"
	case FormatGzip:
		return ".json.gz"
	default:
		return ".json"
	}
}

// Export is a self-contained record of one session.
type Export struct {
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Session    Session   `json:"session"`
	Commands   []Command `json:"commands"`
	Events     []Event   `json:"events"`
}

// Snapshot gathers a session with its commands and events.
func (s *Store) Snapshot(ctx context.Context, sessionID string) (*Export, error) {
	sess, err := s.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cmds, err := s.Commands(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	events, err := s.Events(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &Export{
		Version:    ExportVersion,
		ExportedAt: s.now().UTC(),
		Session:    *sess,
		Commands:   cmds,
		Events:     events,
	}, nil
}

// Export writes a session snapshot to w in the given format.
func (s *Store) Export(ctx context.Context, sessionID string, w io.Writer, format Format) error {
	snap, err := s.Snapshot(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := WriteExport(w, snap, format); err != nil {
		return err
	}
	s.logger.Debug("Exported session",
		zap.String("session_id", sessionID),
		zap.String("format", string(format)),
		zap.Int("events", len(snap.Events)),
		zap.Int("commands", len(snap.Commands)),
	)
	return nil
}

// WriteExport encodes exp as indented JSON, optionally compressed.
func WriteExport(w io.Writer, exp *Export, format Format) error {
	data, err := sonic.MarshalIndent(exp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}

	switch format {
	case FormatJSON, "":
		_, err = w.Write(data)
		return err
	case FormatZstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		if _, err := enc.Write(data); err != nil {
			enc.Close()
			return err
		}
		return enc.Close()
	case FormatGzip:
		gz := gzip.NewWriter(w)
		if _, err := gz.Write(data); err != nil {
			gz.Close()
			return err
		}
		return gz.Close()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// DetectFormat reports the Format of an export from its leading bytes.
// Anything that is not zstd or gzip is taken to be plain JSON.
func DetectFormat(head []byte) Format {
	mtype := mimetype.Detect(head)
	switch {
	case mtype.Is(FormatZstd.ContentType()):
		return FormatZstd
	case mtype.Is(FormatGzip.ContentType()):
		return FormatGzip
	default:
		return FormatJSON
	}
}

// ReadExport decodes an export written in any Format, detecting compression
// from the stream's content.
func ReadExport(r io.Reader) (*Export, error) {
	br := bufio.NewReaderSize(r, sniffLen)
	head, _ := br.Peek(sniffLen)

	var src io.Reader = br
	switch DetectFormat(head) {
	case FormatZstd:
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer dec.Close()
		src = dec
	case FormatGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		src = gz
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}
	var exp Export
	if err := sonic.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("failed to decode export: %w", err)
	}
	return &exp, nil
}
