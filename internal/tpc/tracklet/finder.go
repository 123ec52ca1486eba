package tracklet

import (
	"math/rand"

	"github.com/larpix-data/tracklet.report/internal/config"
	"github.com/larpix-data/tracklet.report/internal/tpc"
)

// Unassigned is the track label for hits not belonging to any track.
const Unassigned = -1

// FinderParams bundles the clustering and fitting knobs of the track
// finder.
type FinderParams struct {
	DBSCAN    tpc.DBSCANParams
	RANSAC    tpc.RANSACParams
	MaxRounds int   // hard cap on clustering rounds per event
	Seed      int64 // base seed for RANSAC sampling
}

// FinderParamsFromConfig builds FinderParams from a tuning config.
func FinderParamsFromConfig(cfg *config.TuningConfig) FinderParams {
	return FinderParams{
		DBSCAN: tpc.DBSCANParams{
			Eps:        cfg.GetDBSCANEps(),
			MinSamples: cfg.GetDBSCANMinSamples(),
		},
		RANSAC: tpc.RANSACParams{
			MinSamples:        cfg.GetRANSACMinSamples(),
			ResidualThreshold: cfg.GetRANSACResidualThreshold(),
			MaxTrials:         cfg.GetRANSACMaxTrials(),
		},
		MaxRounds: cfg.GetMaxClusterRounds(),
		Seed:      cfg.GetRANSACSeed(),
	}
}

// FindTracks partitions the valid hits of a single event into collinear
// groups. xyz and valid are the event's 3D positions and validity row;
// eventIndex selects the event's deterministic RANSAC stream (rng seed
// = Seed ^ eventIndex, so per-event workers are reproducible regardless
// of scheduling).
//
// The returned slice holds one label per hit: Unassigned (-1), or a
// local track id counting up from 0 in acceptance order. Invalid hits
// always stay unassigned.
//
// Each round runs DBSCAN over the still-eligible hits, then tries a
// robust line fit on every dense cluster in ascending label order:
//
//   - clusters with size <= RANSAC.MinSamples are skipped and stay
//     eligible for later rounds;
//   - clusters whose fit keeps fewer than 2 inliers are dropped, and
//     their points leave the eligible set unlabeled;
//   - otherwise the inliers take the next local track id and leave the
//     eligible set, while the fit's outliers stay eligible.
//
// Rounds repeat until clustering yields only noise, no eligible hits
// remain, or a round makes no progress; MaxRounds bounds the loop even
// on pathological inputs.
func FindTracks(xyz []tpc.Point3, valid []bool, params FinderParams, eventIndex int) []int {
	n := len(xyz)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = Unassigned
	}

	eligible := make([]bool, n)
	anyEligible := false
	for i, v := range valid {
		eligible[i] = v
		anyEligible = anyEligible || v
	}
	if !anyEligible {
		return labels
	}

	rng := rand.New(rand.NewSource(params.Seed ^ int64(eventIndex)))
	nextID := 0

	maxRounds := params.MaxRounds
	if maxRounds < 1 {
		maxRounds = 1
	}

	for round := 0; round < maxRounds; round++ {
		clusterLabels := tpc.DBSCAN(xyz, eligible, params.DBSCAN)
		numClusters := tpc.NumClusters(clusterLabels)
		if numClusters == 0 {
			break
		}

		progress := false
		for c := 0; c < numClusters; c++ {
			var members []int
			for i, l := range clusterLabels {
				if l == c {
					members = append(members, i)
				}
			}
			if len(members) <= params.RANSAC.MinSamples {
				continue
			}

			pts := make([]tpc.Point3, len(members))
			for k, i := range members {
				pts[k] = xyz[i]
			}

			_, inliers, ok := tpc.RANSACLine(pts, params.RANSAC, rng)

			// The cluster has been visited either way: its points do
			// not return to the eligible set for this event.
			nInliers := 0
			if ok {
				for _, in := range inliers {
					if in {
						nInliers++
					}
				}
			}

			if nInliers < 2 {
				for _, i := range members {
					eligible[i] = false
				}
				progress = true
				continue
			}

			for k, i := range members {
				if inliers[k] {
					labels[i] = nextID
					eligible[i] = false
				}
			}
			nextID++
			progress = true
		}

		stillEligible := false
		for _, e := range eligible {
			if e {
				stillEligible = true
				break
			}
		}
		if !stillEligible || !progress {
			break
		}
	}

	return labels
}

// MaxLabel returns the highest local track id in a label slice, or -1
// when no hit is assigned.
func MaxLabel(labels []int) int {
	max := Unassigned
	for _, l := range labels {
		if l > max {
			max = l
		}
	}
	return max
}
