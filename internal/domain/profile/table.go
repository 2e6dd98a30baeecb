// Package profile defines the single-cell feature profile: the tabular
// contract handed to the pipeline by upstream feature-extraction tooling.
// A profile row is one cell observation; columns are partitioned into
// metadata fields (plate, well, compound, group label) and a fixed ordered
// block of numeric morphological features shared by every row.
package profile

import (
	"math"

	"github.com/turtacn/MorphoScreen/pkg/errors"
	"github.com/turtacn/MorphoScreen/pkg/types/common"
)

// Table is an immutable single-cell feature profile. Construct one with
// ReadCSV or NewTable; selection methods return new Tables that share the
// underlying row storage, so population slicing is cheap and the feature
// matrix is never copied per compound.
type Table struct {
	metaCols    []string
	featureCols []string

	// meta and features are row-aligned: meta[i] and features[i] describe
	// the same cell. Shared (not copied) by derived Tables; never mutated
	// after construction.
	meta     [][]string
	features [][]float64
}

// NewTable assembles a Table from parallel row slices. The lengths of every
// meta row must equal len(metaCols) and of every feature row len(featureCols).
func NewTable(metaCols, featureCols []string, meta [][]string, features [][]float64) (*Table, error) {
	if len(meta) != len(features) {
		return nil, errors.New(errors.ErrCodeProfileParse, "metadata and feature row counts differ")
	}
	for i := range meta {
		if len(meta[i]) != len(metaCols) {
			return nil, errors.Newf(errors.ErrCodeProfileParse, "row %d has %d metadata values, expected %d", i, len(meta[i]), len(metaCols))
		}
		if len(features[i]) != len(featureCols) {
			return nil, errors.Newf(errors.ErrCodeProfileParse, "row %d has %d feature values, expected %d", i, len(features[i]), len(featureCols))
		}
	}
	return &Table{
		metaCols:    append([]string(nil), metaCols...),
		featureCols: append([]string(nil), featureCols...),
		meta:        meta,
		features:    features,
	}, nil
}

// NumRows returns the number of cell observations.
func (t *Table) NumRows() int { return len(t.features) }

// NumFeatures returns the number of numeric feature columns.
func (t *Table) NumFeatures() int { return len(t.featureCols) }

// FeatureColumns returns a copy of the ordered feature column names.
func (t *Table) FeatureColumns() []string {
	return append([]string(nil), t.featureCols...)
}

// MetaColumns returns a copy of the ordered metadata column names.
func (t *Table) MetaColumns() []string {
	return append([]string(nil), t.metaCols...)
}

// featureIndex returns the position of name in the feature block, or -1.
func (t *Table) featureIndex(name string) int {
	for i, c := range t.featureCols {
		if c == name {
			return i
		}
	}
	return -1
}

// metaIndex returns the position of name in the metadata block, or -1.
func (t *Table) metaIndex(name string) int {
	for i, c := range t.metaCols {
		if c == name {
			return i
		}
	}
	return -1
}

// FeatureColumn returns the values of one feature across all rows, in row
// order. Missing observations are NaN. The returned slice is a copy.
func (t *Table) FeatureColumn(name string) ([]float64, error) {
	j := t.featureIndex(name)
	if j < 0 {
		return nil, errors.Newf(errors.ErrCodeNotFound, "feature column %q not present", name)
	}
	out := make([]float64, len(t.features))
	for i := range t.features {
		out[i] = t.features[i][j]
	}
	return out, nil
}

// Meta returns the metadata value at (row, column).
func (t *Table) Meta(row int, column string) (string, error) {
	j := t.metaIndex(column)
	if j < 0 {
		return "", errors.Newf(errors.ErrCodeNotFound, "metadata column %q not present", column)
	}
	if row < 0 || row >= len(t.meta) {
		return "", errors.Newf(errors.ErrCodeBadRequest, "row %d out of range", row)
	}
	return t.meta[row][j], nil
}

// FeatureRow returns the feature vector of one row. The slice is shared
// with the table and must not be modified.
func (t *Table) FeatureRow(row int) []float64 {
	return t.features[row]
}

// FeatureMatrix returns the full row-major feature block. The outer and
// inner slices are shared with the table and must not be modified.
func (t *Table) FeatureMatrix() [][]float64 {
	return t.features
}

// SelectByMeta returns the sub-table of rows whose metadata column equals
// value. The result shares row storage with the receiver.
func (t *Table) SelectByMeta(column, value string) (*Table, error) {
	j := t.metaIndex(column)
	if j < 0 {
		return nil, errors.Newf(errors.ErrCodeNotFound, "metadata column %q not present", column)
	}
	var meta [][]string
	var features [][]float64
	for i := range t.meta {
		if t.meta[i][j] == value {
			meta = append(meta, t.meta[i])
			features = append(features, t.features[i])
		}
	}
	return &Table{
		metaCols:    t.metaCols,
		featureCols: t.featureCols,
		meta:        meta,
		features:    features,
	}, nil
}

// SelectRows returns the sub-table containing the given row indices, in the
// given order. Indices must be in range.
func (t *Table) SelectRows(rows []int) *Table {
	meta := make([][]string, len(rows))
	features := make([][]float64, len(rows))
	for i, r := range rows {
		meta[i] = t.meta[r]
		features[i] = t.features[r]
	}
	return &Table{
		metaCols:    t.metaCols,
		featureCols: t.featureCols,
		meta:        meta,
		features:    features,
	}
}

// DistinctMeta returns the distinct values of a metadata column in first-
// appearance order.
func (t *Table) DistinctMeta(column string) ([]string, error) {
	j := t.metaIndex(column)
	if j < 0 {
		return nil, errors.Newf(errors.ErrCodeNotFound, "metadata column %q not present", column)
	}
	seen := make(map[string]struct{})
	var out []string
	for i := range t.meta {
		v := t.meta[i][j]
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out, nil
}

// SameFeatureSpace reports whether other carries exactly the same feature
// columns in the same order. Every comparison in a single analysis run
// requires an identical feature space.
func (t *Table) SameFeatureSpace(other *Table) bool {
	if len(t.featureCols) != len(other.featureCols) {
		return false
	}
	for i := range t.featureCols {
		if t.featureCols[i] != other.featureCols[i] {
			return false
		}
	}
	return true
}

// Population couples a table slice with the identifier under which its
// cluster labels will be keyed.
type Population struct {
	ID    common.PopulationID
	Cells *Table
}

// CountValid returns the number of non-NaN observations in a column slice.
func CountValid(values []float64) int {
	n := 0
	for _, v := range values {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}
