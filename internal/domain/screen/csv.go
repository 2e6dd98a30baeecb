package screen

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/turtacn/MorphoScreen/pkg/errors"
	"github.com/turtacn/MorphoScreen/pkg/types/common"
)

var rankingHeader = []string{"rank", "compound", "on_score", "off_score", "excluded", "reason"}

// WriteCSV renders the ranking as CSV, ranked entries first and excluded
// compounds after them with an empty rank cell.
func (r *Ranking) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rankingHeader); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "write ranking header")
	}
	for _, e := range r.Entries {
		rank := ""
		if !e.Excluded {
			rank = strconv.Itoa(e.Rank)
		}
		rec := []string{
			rank,
			string(e.Compound),
			strconv.FormatFloat(e.OnScore, 'g', -1, 64),
			strconv.FormatFloat(e.OffScore, 'g', -1, 64),
			strconv.FormatBool(e.Excluded),
			e.Reason,
		}
		if err := cw.Write(rec); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "write ranking row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "flush ranking")
	}
	return nil
}

// ReadRankingCSV parses a ranking previously written by WriteCSV. Rank
// cells are ignored on input; callers re-rank under their own strategy.
func ReadRankingCSV(r io.Reader) ([]CompoundScore, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(rankingHeader)

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "read ranking header")
	}
	for i, want := range rankingHeader {
		if header[i] != want {
			return nil, errors.Newf(errors.ErrCodeSerialization,
				"unexpected ranking column %q, want %q", header[i], want)
		}
	}

	var entries []CompoundScore
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "read ranking row")
		}
		on, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "parse on_score")
		}
		off, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "parse off_score")
		}
		excluded, err := strconv.ParseBool(rec[4])
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "parse excluded")
		}
		entries = append(entries, CompoundScore{
			Compound: common.CompoundID(rec[1]),
			OnScore:  on,
			OffScore: off,
			Excluded: excluded,
			Reason:   rec[5],
		})
	}
	return entries, nil
}
