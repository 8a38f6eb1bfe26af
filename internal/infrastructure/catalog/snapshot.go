package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrNoInventoryRows is returned when a snapshot holds no inventory-part rows
	ErrNoInventoryRows = errors.New("catalog: snapshot contains no Inventory Part rows")
	// ErrMissingColumn is returned when a snapshot lacks a required column
	ErrMissingColumn = errors.New("catalog: snapshot column not found")
)

var (
	typeColumnCandidates = []string{"Type", "Item Type"}
	nameColumnCandidates = []string{"Sku", "SKU", "Item", "Item Name/Number", "Item Name", "Full Name", "Name"}
)

// Stamp identifies one version of a snapshot. Two equal stamps mean the
// snapshot has not changed since it was last parsed.
type Stamp struct {
	Location string
	Version  string
}

// Source is a readable catalog snapshot
type Source interface {
	// Stat returns the current stamp without reading the content
	Stat(ctx context.Context) (Stamp, error)
	// Open returns the snapshot content
	Open(ctx context.Context) (io.ReadCloser, error)
	// Format returns "csv" or "xlsx"
	Format() string
}

// FileSource reads a snapshot from the local filesystem
type FileSource struct {
	path string
}

var _ Source = (*FileSource)(nil)

// NewFileSource creates a FileSource for path
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Stat implements Source using path and modification time
func (s *FileSource) Stat(_ context.Context) (Stamp, error) {
	abs, err := filepath.Abs(s.path)
	if err != nil {
		abs = s.path
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Stamp{}, fmt.Errorf("catalog: snapshot is not readable: %s: %w", s.path, err)
	}
	return Stamp{
		Location: abs,
		Version:  strconv.FormatInt(info.ModTime().UnixNano(), 10) + "/" + strconv.FormatInt(info.Size(), 10),
	}, nil
}

// Open implements Source
func (s *FileSource) Open(_ context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open snapshot: %w", err)
	}
	return f, nil
}

// Format implements Source
func (s *FileSource) Format() string {
	return formatOf(s.path)
}

func formatOf(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return "xlsx"
	}
	return "csv"
}

// readRows decodes a snapshot into rows, header first
func readRows(r io.Reader, format string) ([][]string, error) {
	if format == "xlsx" {
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("catalog: open xlsx snapshot: %w", err)
		}
		defer f.Close()

		sheet := f.GetSheetName(0)
		if sheet == "" {
			return nil, fmt.Errorf("catalog: xlsx snapshot has no sheets")
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("catalog: read xlsx rows: %w", err)
		}
		return rows, nil
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("catalog: read csv snapshot: %w", err)
	}
	return rows, nil
}

// ParseSnapshot extracts inventory-part item names from snapshot rows.
// Columns are located by fuzzy header match; assemblies are excluded.
func ParseSnapshot(rows [][]string) ([]string, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("catalog: snapshot has no headers")
	}
	headers := append([]string(nil), rows[0]...)
	headers[0] = strings.TrimPrefix(headers[0], "\ufeff")

	typeCol, err := resolveColumn(headers, typeColumnCandidates, "item type")
	if err != nil {
		return nil, err
	}
	nameCol, err := resolveColumn(headers, nameColumnCandidates, "sku")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, row := range rows[1:] {
		if !isInventoryPart(cell(row, typeCol)) {
			continue
		}
		if name := strings.TrimSpace(cell(row, nameCol)); name != "" {
			seen[name] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil, ErrNoInventoryRows
	}
	return sortedNames(seen), nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func resolveColumn(headers, candidates []string, label string) (int, error) {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = normalizeHeader(h)
	}
	for _, c := range candidates {
		want := normalizeHeader(c)
		for i, h := range normalized {
			if h == want {
				return i, nil
			}
		}
	}
	return -1, fmt.Errorf("%w: %s (headers: %s)", ErrMissingColumn, label, strings.Join(headers, ", "))
}

// normalizeHeader keeps only lower-cased letters and digits
func normalizeHeader(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isInventoryPart(itemType string) bool {
	t := normalizeHeader(itemType)
	return strings.Contains(t, "inventorypart") && !strings.Contains(t, "inventoryassembly")
}
