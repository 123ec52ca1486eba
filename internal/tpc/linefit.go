package tpc

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Vector helpers on Point3. Kept minimal; anything heavier goes through
// gonum.

// Sub returns p - q.
func (p Point3) Sub(q Point3) Point3 { return Point3{p.X - q.X, p.Y - q.Y, p.Z - q.Z} }

// Add returns p + q.
func (p Point3) Add(q Point3) Point3 { return Point3{p.X + q.X, p.Y + q.Y, p.Z + q.Z} }

// Scale returns p * s.
func (p Point3) Scale(s float64) Point3 { return Point3{p.X * s, p.Y * s, p.Z * s} }

// Dot returns the dot product of p and q.
func (p Point3) Dot(q Point3) float64 { return p.X*q.X + p.Y*q.Y + p.Z*q.Z }

// Norm returns the Euclidean length of p.
func (p Point3) Norm() float64 { return math.Sqrt(p.Dot(p)) }

// Line is a 3D line through Origin along the unit vector Dir.
type Line struct {
	Origin Point3
	Dir    Point3
}

// Residual returns the perpendicular distance from p to the line.
func (l Line) Residual(p Point3) float64 {
	d := p.Sub(l.Origin)
	s := d.Dot(l.Dir)
	return d.Sub(l.Dir.Scale(s)).Norm()
}

// PrincipalAxis computes the centroid of a point set and the first
// principal component of the centered positions, as a unit vector.
// The sign of the axis is whatever the decomposition returns; callers
// must not assume a canonical orientation. Returns ok=false for fewer
// than two points or a failed decomposition.
func PrincipalAxis(points []Point3) (centroid, axis Point3, ok bool) {
	n := len(points)
	if n < 2 {
		return Point3{}, Point3{}, false
	}

	var sum Point3
	for _, p := range points {
		sum = sum.Add(p)
	}
	centroid = sum.Scale(1 / float64(n))

	data := mat.NewDense(n, 3, nil)
	for i, p := range points {
		data.Set(i, 0, p.X)
		data.Set(i, 1, p.Y)
		data.Set(i, 2, p.Z)
	}

	var pc stat.PC
	if !pc.PrincipalComponents(data, nil) {
		return Point3{}, Point3{}, false
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	axis = Point3{vecs.At(0, 0), vecs.At(1, 0), vecs.At(2, 0)}
	norm := axis.Norm()
	if norm == 0 {
		return Point3{}, Point3{}, false
	}
	return centroid, axis.Scale(1 / norm), true
}

// fitLineSample fits a line to a minimal RANSAC sample. Two-point
// samples are fit directly; larger samples go through PrincipalAxis.
func fitLineSample(sample []Point3) (Line, bool) {
	if len(sample) == 2 {
		dir := sample[1].Sub(sample[0])
		norm := dir.Norm()
		if norm == 0 {
			return Line{}, false
		}
		return Line{Origin: sample[0], Dir: dir.Scale(1 / norm)}, true
	}

	centroid, axis, ok := PrincipalAxis(sample)
	if !ok {
		return Line{}, false
	}
	return Line{Origin: centroid, Dir: axis}, true
}

// RANSACParams contains parameters for the robust line fit.
type RANSACParams struct {
	MinSamples        int     // points per minimal sample (2 for a line)
	ResidualThreshold float64 // inlier distance cut (mm)
	MaxTrials         int     // hard bound on resampling
}

// RANSACLine fits a 3D line to the points by random sample consensus:
// repeatedly draw a minimal sample, fit a line, count points within the
// residual threshold, and keep the best-supported fit. The trial count
// is the only retry loop in the reconstruction and is hard-bounded by
// MaxTrials. Determinism is the caller's concern via the supplied rng.
//
// Returns the best line, a per-point inlier flag, and ok=false when the
// input cannot support a fit (too few points or every sample degenerate).
func RANSACLine(points []Point3, params RANSACParams, rng *rand.Rand) (Line, []bool, bool) {
	n := len(points)
	minSamples := params.MinSamples
	if minSamples < 2 {
		minSamples = 2
	}
	if n < minSamples {
		return Line{}, nil, false
	}

	var (
		best      Line
		bestCount int
		sample    = make([]Point3, minSamples)
	)

	for trial := 0; trial < params.MaxTrials; trial++ {
		perm := rng.Perm(n)
		for k := 0; k < minSamples; k++ {
			sample[k] = points[perm[k]]
		}

		line, ok := fitLineSample(sample)
		if !ok {
			continue // degenerate sample, spend the trial
		}

		count := 0
		for _, p := range points {
			if line.Residual(p) < params.ResidualThreshold {
				count++
			}
		}
		if count > bestCount {
			best = line
			bestCount = count
		}
	}

	if bestCount == 0 {
		return Line{}, nil, false
	}

	inliers := make([]bool, n)
	for i, p := range points {
		inliers[i] = best.Residual(p) < params.ResidualThreshold
	}
	return best, inliers, true
}
