package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	ErrEmptyDataset      = errors.New("dataset has no columns")
)

// Row is one dataset record keyed by column name.
type Row map[string]string

// Parsed is the result of reading an uploaded dataset file.
type Parsed struct {
	Format  string
	Columns []string
	Rows    []Row
}

// FormatFromFilename infers the format from a file extension.
func FormatFromFilename(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return "csv"
	case ".jsonl", ".ndjson":
		return "jsonl"
	case ".json":
		return "json"
	default:
		return ""
	}
}

// Parse reads a csv, json (array of objects) or jsonl dataset.
func Parse(format string, r io.Reader) (*Parsed, error) {
	format = strings.ToLower(strings.TrimSpace(format))

	var (
		p   *Parsed
		err error
	)
	switch format {
	case "csv":
		p, err = parseCSV(r)
	case "json":
		p, err = parseJSON(r)
	case "jsonl":
		p, err = parseJSONL(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	if len(p.Columns) == 0 {
		return nil, ErrEmptyDataset
	}

	p.Format = format
	return p, nil
}

func parseCSV(r io.Reader) (*Parsed, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyDataset
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make([]string, 0, len(header))
	for i, col := range header {
		col = strings.TrimSpace(col)
		if i == 0 {
			col = strings.TrimPrefix(col, "\ufeff")
		}
		if col != "" {
			columns = append(columns, col)
		}
	}

	var rows []Row
	for lineNum := 2; ; lineNum++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", lineNum, err)
		}

		row := make(Row, len(header))
		for i, col := range header {
			col = strings.TrimPrefix(strings.TrimSpace(col), "\ufeff")
			if col == "" || i >= len(record) {
				continue
			}
			row[col] = record[i]
		}
		rows = append(rows, row)
	}

	return &Parsed{Columns: columns, Rows: rows}, nil
}

func parseJSON(r io.Reader) (*Parsed, error) {
	var records []map[string]any
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode JSON dataset: %w", err)
	}
	return fromObjects(records)
}

func parseJSONL(r io.Reader) (*Parsed, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var records []map[string]any
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode JSONL line %d: %w", lineNum, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read JSONL dataset: %w", err)
	}
	return fromObjects(records)
}

// fromObjects keeps columns in first-seen order; keys within one object are
// taken alphabetically since JSON objects carry no order.
func fromObjects(records []map[string]any) (*Parsed, error) {
	var columns []string
	seen := make(map[string]bool)
	rows := make([]Row, 0, len(records))

	for _, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		row := make(Row, len(rec))
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
			row[k] = stringify(rec[k])
		}
		rows = append(rows, row)
	}

	return &Parsed{Columns: columns, Rows: rows}, nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
