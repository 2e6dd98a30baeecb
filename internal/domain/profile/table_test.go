package profile

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `plate,well,compound,group,Nuclei_Area,Cells_Intensity
P1,A01,DMSO,control,10.5,0.9
P1,A02,DMSO,control,11.0,
P1,B01,CMP-1,treatment,20.1,1.4
P1,B02,CMP-1,treatment,19.8,NaN
P1,C01,CMP-2,treatment,15.0,1.1
`

var sampleMeta = []string{"plate", "well", "compound", "group"}

func readSample(t *testing.T) *Table {
	t.Helper()
	tbl, err := ReadCSV(strings.NewReader(sampleCSV), sampleMeta)
	require.NoError(t, err)
	return tbl
}

func TestReadCSV(t *testing.T) {
	tbl := readSample(t)

	assert.Equal(t, 5, tbl.NumRows())
	assert.Equal(t, []string{"Nuclei_Area", "Cells_Intensity"}, tbl.FeatureColumns())
	assert.Equal(t, []string{"plate", "well", "compound", "group"}, tbl.MetaColumns())

	col, err := tbl.FeatureColumn("Nuclei_Area")
	require.NoError(t, err)
	assert.Equal(t, []float64{10.5, 11.0, 20.1, 19.8, 15.0}, col)

	// Empty cells and "NaN" literals parse as NaN.
	col, err = tbl.FeatureColumn("Cells_Intensity")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(col[1]))
	assert.True(t, math.IsNaN(col[3]))
	assert.Equal(t, 3, CountValid(col))
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b\n1,2\n"), []string{"missing"})
	assert.Error(t, err)

	// All columns are metadata: no feature block.
	_, err = ReadCSV(strings.NewReader("plate,well\nP1,A01\n"), []string{"plate", "well"})
	assert.Error(t, err)

	// Non-numeric feature value.
	_, err = ReadCSV(strings.NewReader("plate,f\nP1,abc\n"), []string{"plate"})
	assert.Error(t, err)
}

func TestSelectByMeta(t *testing.T) {
	tbl := readSample(t)

	controls, err := tbl.SelectByMeta("group", "control")
	require.NoError(t, err)
	assert.Equal(t, 2, controls.NumRows())

	cmp1, err := tbl.SelectByMeta("compound", "CMP-1")
	require.NoError(t, err)
	assert.Equal(t, 2, cmp1.NumRows())

	// Selections preserve the feature space.
	assert.True(t, tbl.SameFeatureSpace(controls))
	assert.True(t, controls.SameFeatureSpace(cmp1))

	empty, err := tbl.SelectByMeta("group", "nonexistent")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.NumRows())
}

func TestSelectRows(t *testing.T) {
	tbl := readSample(t)
	sub := tbl.SelectRows([]int{4, 0})

	require.Equal(t, 2, sub.NumRows())
	assert.Equal(t, []float64{15.0, 1.1}, sub.FeatureRow(0))

	well, err := sub.Meta(1, "well")
	require.NoError(t, err)
	assert.Equal(t, "A01", well)
}

func TestDistinctMeta(t *testing.T) {
	tbl := readSample(t)
	compounds, err := tbl.DistinctMeta("compound")
	require.NoError(t, err)
	assert.Equal(t, []string{"DMSO", "CMP-1", "CMP-2"}, compounds)
}

func TestSameFeatureSpace_Mismatch(t *testing.T) {
	a, err := ReadCSV(strings.NewReader("g,f1,f2\nx,1,2\n"), []string{"g"})
	require.NoError(t, err)
	b, err := ReadCSV(strings.NewReader("g,f2,f1\nx,1,2\n"), []string{"g"})
	require.NoError(t, err)

	// Same names, different order: not comparable.
	assert.False(t, a.SameFeatureSpace(b))
}
