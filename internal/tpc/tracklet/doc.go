// Package tracklet owns the track-finding and track-geometry engine.
//
// Responsibilities: the per-event iterative cluster-then-fit loop that
// partitions hits into collinear groups, per-track geometry (principal
// axis, endpoints, residuals), durable identifier assignment, and the
// association tables handed to storage.
// Key types: Finder, Track, TrackTable, Associations, Reconstructor.
//
// Dependency rule: tracklet may depend on tpc and below, never on the
// storage layer. No SQL/database code is allowed in this package.
package tracklet
