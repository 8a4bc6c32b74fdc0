package broker

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"

	apperrors "fno-ledger/internal/errors"
	"fno-ledger/internal/models"
)

// TradebookFile reads a Zerodha Console tradebook CSV export.
type TradebookFile struct {
	Path string
}

// NewTradebookFile creates a source for the CSV at path.
func NewTradebookFile(path string) *TradebookFile {
	return &TradebookFile{Path: path}
}

// Name returns the file path.
func (f *TradebookFile) Name() string {
	return f.Path
}

// Trades reads and decodes the whole file.
func (f *TradebookFile) Trades(ctx context.Context) ([]models.RawTrade, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, apperrors.NewDataError("tradebook", f.Path, "failed to open", err)
	}
	defer file.Close()

	rows, err := ReadTradebook(file)
	if err != nil {
		return nil, apperrors.NewDataError("tradebook", f.Path, "failed to decode", err)
	}
	return rows, nil
}

// ReadTradebook decodes tradebook rows from r. Header names are matched
// case-insensitively and may carry surrounding spaces; unknown columns are
// ignored and missing ones decode as empty strings.
func ReadTradebook(r io.Reader) ([]models.RawTrade, error) {
	normalized, err := normalizeHeader(r)
	if err != nil {
		return nil, err
	}
	if normalized == nil {
		return nil, nil
	}

	var rows []models.RawTrade
	if err := gocsv.Unmarshal(normalized, &rows); err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Row = i + 1
	}
	return rows, nil
}

// normalizeHeader rewrites the header row as trimmed lower-case names.
// It returns nil for empty input.
func normalizeHeader(r io.Reader) (io.Reader, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	for i, h := range records[0] {
		h = strings.TrimPrefix(h, "\ufeff")
		records[0][i] = strings.ToLower(strings.TrimSpace(h))
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	return &buf, nil
}
