package cluster

import (
	"math"
	"math/rand"

	mstats "github.com/montanaflynn/stats"

	"github.com/turtacn/MorphoScreen/pkg/errors"
)

// pcaProject reduces data (rows × features) to dims principal components.
// Missing values must already be imputed. The decomposition uses seeded
// power iteration with deflation so identical inputs and seeds always
// produce identical projections.
func pcaProject(data [][]float64, dims int, seed int64) ([][]float64, error) {
	n := len(data)
	if n == 0 {
		return nil, errors.New(errors.ErrCodeProjectionFailed, "empty input matrix")
	}
	d := len(data[0])
	if dims < 1 || dims > d {
		return nil, errors.Newf(errors.ErrCodeProjectionFailed,
			"cannot project %d features onto %d dimensions", d, dims)
	}

	centered := centerColumns(data)
	cov := covarianceMatrix(centered)

	rng := rand.New(rand.NewSource(seed))
	components := make([][]float64, 0, dims)
	for c := 0; c < dims; c++ {
		vec, ok := powerIteration(cov, rng)
		if !ok {
			return nil, errors.Newf(errors.ErrCodeProjectionFailed,
				"power iteration did not converge for component %d", c)
		}
		components = append(components, vec)
		deflate(cov, vec)
	}

	projected := make([][]float64, n)
	for i, row := range centered {
		p := make([]float64, dims)
		for c, comp := range components {
			var dot float64
			for j := range row {
				dot += row[j] * comp[j]
			}
			p[c] = dot
		}
		projected[i] = p
	}
	return projected, nil
}

// centerColumns subtracts the column mean from every entry.
func centerColumns(data [][]float64) [][]float64 {
	n, d := len(data), len(data[0])
	means := make([]float64, d)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		for i := range data {
			col[i] = data[i][j]
		}
		m, _ := mstats.Mean(col)
		means[j] = m
	}
	out := make([][]float64, n)
	for i, row := range data {
		r := make([]float64, d)
		for j := range row {
			r[j] = row[j] - means[j]
		}
		out[i] = r
	}
	return out
}

func covarianceMatrix(centered [][]float64) [][]float64 {
	n, d := len(centered), len(centered[0])
	denom := float64(n - 1)
	if n < 2 {
		denom = 1
	}
	cov := make([][]float64, d)
	for j := range cov {
		cov[j] = make([]float64, d)
	}
	for _, row := range centered {
		for j := 0; j < d; j++ {
			for k := j; k < d; k++ {
				cov[j][k] += row[j] * row[k] / denom
			}
		}
	}
	for j := 0; j < d; j++ {
		for k := 0; k < j; k++ {
			cov[j][k] = cov[k][j]
		}
	}
	return cov
}

// powerIteration finds the dominant eigenvector of a symmetric matrix.
// The sign is fixed so the largest-magnitude entry is positive.
func powerIteration(m [][]float64, rng *rand.Rand) ([]float64, bool) {
	const (
		maxIter = 1000
		tol     = 1e-10
	)
	d := len(m)
	vec := make([]float64, d)
	for j := range vec {
		vec[j] = rng.Float64() - 0.5
	}
	normalize(vec)

	next := make([]float64, d)
	for iter := 0; iter < maxIter; iter++ {
		for j := 0; j < d; j++ {
			var sum float64
			for k := 0; k < d; k++ {
				sum += m[j][k] * vec[k]
			}
			next[j] = sum
		}
		if normalize(next) == 0 {
			// Zero matrix after deflation; any unit vector is valid.
			fixSign(vec)
			return vec, true
		}
		var diff float64
		for j := range vec {
			diff += math.Abs(next[j] - vec[j])
		}
		copy(vec, next)
		if diff < tol {
			break
		}
	}
	fixSign(vec)
	return vec, true
}

func normalize(v []float64) float64 {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return 0
	}
	for j := range v {
		v[j] /= norm
	}
	return norm
}

func fixSign(v []float64) {
	maxIdx := 0
	for j, x := range v {
		if math.Abs(x) > math.Abs(v[maxIdx]) {
			maxIdx = j
		}
	}
	if v[maxIdx] < 0 {
		for j := range v {
			v[j] = -v[j]
		}
	}
}

// deflate removes the component along vec from the matrix:
// m ← m − λ v vᵀ with λ = vᵀ m v.
func deflate(m [][]float64, vec []float64) {
	d := len(m)
	mv := make([]float64, d)
	for j := 0; j < d; j++ {
		for k := 0; k < d; k++ {
			mv[j] += m[j][k] * vec[k]
		}
	}
	var lambda float64
	for j := 0; j < d; j++ {
		lambda += vec[j] * mv[j]
	}
	for j := 0; j < d; j++ {
		for k := 0; k < d; k++ {
			m[j][k] -= lambda * vec[j] * vec[k]
		}
	}
}
