// Package export writes the combined order and product-view history to a
// CSV file for offline analysis, optionally zstd-compressed.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"recomail/internal/types"
)

var csvHeader = []string{"email", "product_name", "timestamp", "type"}

// Writer serializes combined records to CSV.
type Writer struct {
	compress bool
	logger   types.Logger
}

// NewWriter creates a writer. When compress is true the output is zstd
// framed and the file name gains a .zst suffix.
func NewWriter(compress bool, logger types.Logger) *Writer {
	return &Writer{compress: compress, logger: logger}
}

// WriteFile writes the records to path, creating parent directories as
// needed. It returns the final path, which differs from the requested
// one when compression is enabled.
func (w *Writer) WriteFile(path string, records []types.CombinedRecord) (string, error) {
	if w.compress {
		path += ".zst"
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create export dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	if err := w.Write(f, records); err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close export file: %w", err)
	}

	w.logger.Info("export written", "path", path, "records", len(records), "compressed", w.compress)
	return path, nil
}

// Write serializes the records to out.
func (w *Writer) Write(out io.Writer, records []types.CombinedRecord) error {
	var dst io.Writer = out
	var enc *zstd.Encoder
	if w.compress {
		var err error
		enc, err = zstd.NewWriter(out)
		if err != nil {
			return fmt.Errorf("create zstd writer: %w", err)
		}
		dst = enc
	}

	cw := csv.NewWriter(dst)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.Email,
			rec.ProductName,
			rec.Timestamp.UTC().Format(time.RFC3339),
			rec.Type,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write export row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush export: %w", err)
	}

	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("close zstd writer: %w", err)
		}
	}
	return nil
}
