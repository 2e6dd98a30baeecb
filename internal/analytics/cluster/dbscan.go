package cluster

import "math"

// NoiseLabel marks points assigned to no cluster.
const NoiseLabel = -1

const unvisited = -2

// dbscan labels every point with a cluster id starting at 0, or NoiseLabel.
// epsilon is the neighborhood radius and minPts the density threshold
// (neighborhoods include the point itself). Labels are deterministic: seeds
// are expanded in input order.
func dbscan(points [][]float64, epsilon float64, minPts int) []int {
	n := len(points)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}

	eps2 := epsilon * epsilon
	next := 0
	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}
		neighbors := regionQuery(points, i, eps2)
		if len(neighbors) < minPts {
			labels[i] = NoiseLabel
			continue
		}
		labels[i] = next
		expandCluster(points, labels, neighbors, next, eps2, minPts)
		next++
	}
	return labels
}

func expandCluster(points [][]float64, labels, seeds []int, cluster int, eps2 float64, minPts int) {
	for k := 0; k < len(seeds); k++ {
		j := seeds[k]
		if labels[j] == NoiseLabel {
			labels[j] = cluster // border point reached from a core point
			continue
		}
		if labels[j] != unvisited {
			continue
		}
		labels[j] = cluster
		neighbors := regionQuery(points, j, eps2)
		if len(neighbors) >= minPts {
			seeds = append(seeds, neighbors...)
		}
	}
}

func regionQuery(points [][]float64, i int, eps2 float64) []int {
	var out []int
	for j := range points {
		if sqDist(points[i], points[j]) <= eps2 {
			out = append(out, j)
		}
	}
	return out
}

func sqDist(a, b []float64) float64 {
	var sum float64
	for k := range a {
		d := a[k] - b[k]
		sum += d * d
	}
	if math.IsNaN(sum) {
		return math.Inf(1)
	}
	return sum
}
