package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Snapshot sources and audit sinks
// return these (optionally wrapped) so services can translate them into
// domain errors.
//
//   - ErrNotFound: key or row does not exist
//   - ErrUnavailable: backing service is down or the circuit is open
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("unavailable")
)
