// Package domain models ensemble forecast snapshots and their tubing results.
//
// # Data Source
//
// Snapshots are published to the source topic by the upstream retrieval
// service after it has fetched every member of an ensemble run and normalized
// units and coordinates. One message carries one snapshot: a single model,
// variable, level, initialization time and lead time.
//
// # stda Conventions
//
// Field names follow the stda tabular grid convention used across the
// forecast tooling:
//
//	level     vertical level, e.g. 500 for 500 hPa
//	time      initialization time, RFC 3339 UTC ("init_time" on the wire)
//	dtime     lead time in whole hours
//	lat, lon  grid coordinates in degrees, shared by every member
//	member    ensemble member number as assigned by the producing center
//
// Member values are a 2-D array indexed [lat][lon]. Members may be listed in
// any order and their numbers need not be contiguous; positions in the
// message define member indices for the tubing computation, and results are
// reported back in member numbers.
//
// When "init_time" is absent the Kafka message timestamp is used instead.
//
// # Extent
//
// An optional four-float "extent" [lon_min, lon_max, lat_min, lat_max]
// restricts the domain used for distances. A message extent overrides the
// service-wide TUBING_EXTENT.
//
// # ID Generation
//
// Result IDs are deterministic SHA-256 hashes of
// model|variable|level|init_time|dtime, so replaying a snapshot produces the
// same key downstream. See [generateID].
package domain
