package tpc

import (
	"math"
)

// Constants for clustering configuration
const (
	// EstimatedPointsPerCell is used for initial spatial index capacity estimation
	EstimatedPointsPerCell = 4
)

// DBSCANParams contains parameters for the DBSCAN clustering algorithm.
type DBSCANParams struct {
	Eps        float64 // Neighborhood radius (mm)
	MinSamples int     // Minimum neighborhood size for a core point
}

// cellKey addresses one cell of the 3D grid index.
type cellKey struct {
	X, Y, Z int32
}

// SpatialIndex provides efficient nearest neighbor queries using a
// regular 3D grid. Cell size should approximately match the DBSCAN eps
// parameter so neighborhoods span at most the 27 surrounding cells.
type SpatialIndex struct {
	CellSize float64
	Grid     map[cellKey][]int // cell → point indices
}

// NewSpatialIndex creates a spatial index with the specified cell size.
func NewSpatialIndex(cellSize float64) *SpatialIndex {
	return &SpatialIndex{
		CellSize: cellSize,
		Grid:     make(map[cellKey][]int),
	}
}

func (si *SpatialIndex) cellOf(p Point3) cellKey {
	return cellKey{
		X: int32(math.Floor(p.X / si.CellSize)),
		Y: int32(math.Floor(p.Y / si.CellSize)),
		Z: int32(math.Floor(p.Z / si.CellSize)),
	}
}

// Build populates the spatial index from a set of points. Points whose
// eligible flag is false are left out of the index entirely.
func (si *SpatialIndex) Build(points []Point3, eligible []bool) {
	si.Grid = make(map[cellKey][]int, len(points)/EstimatedPointsPerCell)

	for i, p := range points {
		if eligible != nil && !eligible[i] {
			continue
		}
		key := si.cellOf(p)
		si.Grid[key] = append(si.Grid[key], i)
	}
}

// RegionQuery returns indices of all indexed points within eps distance
// of points[idx], using full 3D Euclidean distance. The query point
// itself is included.
func (si *SpatialIndex) RegionQuery(points []Point3, idx int, eps float64) []int {
	p := points[idx]
	neighbors := []int{}
	eps2 := eps * eps // squared distance avoids sqrt

	base := si.cellOf(p)
	for dx := int32(-1); dx <= 1; dx++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for dz := int32(-1); dz <= 1; dz++ {
				key := cellKey{base.X + dx, base.Y + dy, base.Z + dz}
				for _, candidateIdx := range si.Grid[key] {
					candidate := points[candidateIdx]
					ddx := candidate.X - p.X
					ddy := candidate.Y - p.Y
					ddz := candidate.Z - p.Z
					if ddx*ddx+ddy*ddy+ddz*ddz <= eps2 {
						neighbors = append(neighbors, candidateIdx)
					}
				}
			}
		}
	}

	return neighbors
}

// DBSCAN performs density-based clustering over the eligible subset of
// points. The returned slice has one entry per input point: a cluster
// label in 0..k-1 for clustered points, -1 for noise points and for
// points excluded by the eligibility mask. Labels are assigned in scan
// order, so label c is only used after labels 0..c-1.
func DBSCAN(points []Point3, eligible []bool, params DBSCANParams) []int {
	n := len(points)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	if n == 0 {
		return labels
	}

	spatialIndex := NewSpatialIndex(params.Eps)
	spatialIndex.Build(points, eligible)

	// 0 = unvisited, -1 = noise, >0 = cluster id
	state := make([]int, n)
	clusterID := 0

	for i := 0; i < n; i++ {
		if eligible != nil && !eligible[i] {
			continue
		}
		if state[i] != 0 {
			continue
		}

		neighbors := spatialIndex.RegionQuery(points, i, params.Eps)
		if len(neighbors) < params.MinSamples {
			state[i] = -1
			continue
		}

		clusterID++
		expandCluster(points, spatialIndex, state, i, neighbors, clusterID, params.Eps, params.MinSamples)
	}

	for i := 0; i < n; i++ {
		if state[i] > 0 {
			labels[i] = state[i] - 1
		}
	}
	return labels
}

// expandCluster expands a cluster from a core point using a queue of
// candidate neighbors.
func expandCluster(points []Point3, si *SpatialIndex, state []int,
	seedIdx int, neighbors []int, clusterID int, eps float64, minSamples int) {

	state[seedIdx] = clusterID

	for j := 0; j < len(neighbors); j++ {
		idx := neighbors[j]

		if state[idx] == -1 {
			state[idx] = clusterID // noise becomes a border point
		}

		if state[idx] != 0 {
			continue // already processed
		}

		state[idx] = clusterID
		newNeighbors := si.RegionQuery(points, idx, eps)

		if len(newNeighbors) >= minSamples {
			// Core point: queue its neighborhood as well.
			neighbors = append(neighbors, newNeighbors...)
		}
	}
}

// NumClusters returns the number of distinct non-noise labels in a
// DBSCAN result.
func NumClusters(labels []int) int {
	max := -1
	for _, l := range labels {
		if l > max {
			max = l
		}
	}
	return max + 1
}
