package dataset

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ErrDuplicateKey is returned when two records in a pool share a key.
var ErrDuplicateKey = errors.New("dataset: duplicate record key")

// stratumSep joins feature values into a stratum key. It is a control
// character so it never collides with real CSV content.
const stratumSep = "\x1f"

// Record is one row of the master pool.
type Record struct {
	Key    int               `json:"key"`
	Values map[string]string `json:"values"`
}

// Value returns the canonical value of a column and whether it is present.
func (r Record) Value(column string) (string, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// Pool is an ordered, read-only collection of records with unique keys.
type Pool struct {
	columns []string
	records []Record
	index   map[int]int
}

// NewPool builds a pool from records in their source order.
func NewPool(columns []string, records []Record) (*Pool, error) {
	p := &Pool{
		columns: append([]string(nil), columns...),
		records: make([]Record, 0, len(records)),
		index:   make(map[int]int, len(records)),
	}
	for _, rec := range records {
		if _, dup := p.index[rec.Key]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateKey, rec.Key)
		}
		p.index[rec.Key] = len(p.records)
		p.records = append(p.records, rec)
	}
	return p, nil
}

// FromRows builds a pool from loosely typed rows. Row i gets key i and every
// value is coerced with Canonical. Columns are the sorted union of row keys.
func FromRows(rows []map[string]any) *Pool {
	seen := map[string]struct{}{}
	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		values := make(map[string]string, len(row))
		for col, v := range row {
			values[col] = Canonical(v)
			seen[col] = struct{}{}
		}
		records = append(records, Record{Key: i, Values: values})
	}
	columns := make([]string, 0, len(seen))
	for col := range seen {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	pool, _ := NewPool(columns, records) // keys are row indices, never duplicated
	return pool
}

// Len reports the number of records in the pool.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.records)
}

// Records returns the records in pool order. The slice is a copy.
func (p *Pool) Records() []Record {
	if p == nil {
		return nil
	}
	return append([]Record(nil), p.records...)
}

// Columns returns the column names in source order.
func (p *Pool) Columns() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.columns...)
}

// HasColumn reports whether name is one of the pool's columns.
func (p *Pool) HasColumn(name string) bool {
	for _, col := range p.Columns() {
		if col == name {
			return true
		}
	}
	return false
}

// Record looks up a record by key.
func (p *Pool) Record(key int) (Record, bool) {
	if p == nil {
		return Record{}, false
	}
	i, ok := p.index[key]
	if !ok {
		return Record{}, false
	}
	return p.records[i], true
}

// Select returns the records for keys in the given order.
func (p *Pool) Select(keys []int) ([]Record, error) {
	out := make([]Record, 0, len(keys))
	for _, key := range keys {
		rec, ok := p.Record(key)
		if !ok {
			return nil, fmt.Errorf("dataset: unknown record key %d", key)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ValidateFeatures fails with an InvalidFeatureError naming the first record
// that lacks one of the features.
func (p *Pool) ValidateFeatures(features []string) error {
	return ValidateFeatures(p.Records(), features)
}

// ValidateFeatures checks that every record carries every feature.
func ValidateFeatures(records []Record, features []string) error {
	for _, feature := range features {
		for _, rec := range records {
			if _, ok := rec.Values[feature]; !ok {
				return &InvalidFeatureError{Feature: feature, Key: rec.Key}
			}
		}
	}
	return nil
}

// Keys returns the keys of records in order.
func Keys(records []Record) []int {
	keys := make([]int, len(records))
	for i, rec := range records {
		keys[i] = rec.Key
	}
	return keys
}

// Stratum returns the composite key of a record's feature values. Two records
// share a stratum exactly when their values are identical across features.
func Stratum(rec Record, features []string) (string, error) {
	parts := make([]string, len(features))
	for i, feature := range features {
		v, ok := rec.Values[feature]
		if !ok {
			return "", &InvalidFeatureError{Feature: feature, Key: rec.Key}
		}
		parts[i] = v
	}
	return strings.Join(parts, stratumSep), nil
}

// StratumLabel renders a stratum key for humans.
func StratumLabel(stratum string) string {
	return strings.ReplaceAll(stratum, stratumSep, " / ")
}

// Canonical converts a scalar to the string form used for grouping. Floats
// with an integral value print without a fractional part so 1 and 1.0 land
// in the same category.
func Canonical(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case float32:
		return canonicalFloat(float64(val))
	case float64:
		return canonicalFloat(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func canonicalFloat(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	if !math.IsInf(f, 0) && f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
