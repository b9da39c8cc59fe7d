package dataset

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// IndexColumn is the key column written into exported panel and set files.
const IndexColumn = "original_index"

// LoadOptions controls how a delimited file becomes a pool.
type LoadOptions struct {
	// KeyColumn names an integer column holding record keys. When empty,
	// IndexColumn is used if the header has it, otherwise the 0-based row
	// position.
	KeyColumn string
	// Delimiter defaults to a comma.
	Delimiter rune
}

// LoadFile reads a delimited file from disk. The returned checksum covers the
// raw file bytes so callers can tell when the master data changed.
func LoadFile(path string, opts LoadOptions) (*Pool, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("dataset: read %s: %w", path, err)
	}
	pool, err := Read(strings.NewReader(string(data)), opts)
	if err != nil {
		return nil, "", fmt.Errorf("dataset: load %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return pool, hex.EncodeToString(sum[:]), nil
}

// Read parses a header row followed by data rows.
func Read(r io.Reader, opts LoadOptions) (*Pool, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("missing header row")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	keyColumn := opts.KeyColumn
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if name == "" {
			return nil, fmt.Errorf("header column %d is empty", i+1)
		}
		header[i] = name
		if name == IndexColumn {
			if keyColumn == "" {
				keyColumn = IndexColumn
			} else if keyColumn != IndexColumn {
				return nil, fmt.Errorf("column %q is reserved for exported keys; rename it or use it as the key column", IndexColumn)
			}
		}
	}
	keyIdx := -1
	columns := make([]string, 0, len(header))
	for i, name := range header {
		if keyColumn != "" && name == keyColumn {
			keyIdx = i
			continue
		}
		columns = append(columns, name)
	}
	if keyColumn != "" && keyIdx < 0 {
		return nil, fmt.Errorf("key column %q not found", keyColumn)
	}

	var records []Record
	for row := 0; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+1, err)
		}
		key := row
		values := make(map[string]string, len(columns))
		for i, field := range fields {
			if i == keyIdx {
				key, err = strconv.Atoi(strings.TrimSpace(field))
				if err != nil {
					return nil, fmt.Errorf("row %d: key column %q: %w", row+1, keyColumn, err)
				}
				continue
			}
			values[header[i]] = strings.TrimSpace(field)
		}
		records = append(records, Record{Key: key, Values: values})
	}
	return NewPool(columns, records)
}
