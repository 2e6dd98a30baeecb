package profile

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/turtacn/MorphoScreen/pkg/errors"
)

// ReadCSV parses a headered CSV stream into a Table. Columns listed in
// metaColumns form the metadata block; every remaining column must parse as
// a float64 feature. Empty cells and the literals "NaN"/"nan" become NaN.
// The header must contain every requested metadata column and at least one
// feature column.
func ReadCSV(r io.Reader, metaColumns []string) (*Table, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeProfileParse, "failed to read CSV header")
	}

	metaSet := make(map[string]struct{}, len(metaColumns))
	for _, c := range metaColumns {
		metaSet[c] = struct{}{}
	}

	// Column layout in header order: each header cell is either metadata
	// or a feature.
	var metaCols, featureCols []string
	metaIdx := make([]int, 0, len(metaColumns))
	featIdx := make([]int, 0, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, ok := metaSet[h]; ok {
			metaCols = append(metaCols, h)
			metaIdx = append(metaIdx, i)
		} else {
			featureCols = append(featureCols, h)
			featIdx = append(featIdx, i)
		}
	}
	if len(metaCols) != len(metaColumns) {
		return nil, errors.Newf(errors.ErrCodeProfileParse, "header is missing %d of the requested metadata columns", len(metaColumns)-len(metaCols))
	}
	if len(featureCols) == 0 {
		return nil, errors.New(errors.ErrCodeNoFeatureColumns, "profile contains no numeric feature columns")
	}

	var meta [][]string
	var features [][]float64
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeProfileParse, "malformed CSV record")
		}

		m := make([]string, len(metaIdx))
		for k, i := range metaIdx {
			m[k] = rec[i]
		}
		f := make([]float64, len(featIdx))
		for k, i := range featIdx {
			f[k], err = parseCell(rec[i])
			if err != nil {
				return nil, errors.Newf(errors.ErrCodeProfileParse, "line %d, column %q: %v", line, featureCols[k], err)
			}
		}
		meta = append(meta, m)
		features = append(features, f)
	}

	return NewTable(metaCols, featureCols, meta, features)
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "NaN" || s == "nan" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
