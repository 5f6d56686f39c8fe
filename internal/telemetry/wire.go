package telemetry

import "github.com/google/wire"

// ProviderSet is the Wire provider set for telemetry. NewHandler is
// called directly by Runtime rather than through Wire, since it must
// run inside the metrics-server goroutine rather than at injection
// time; this exists for symmetry with the other per-package provider
// sets.
var ProviderSet = wire.NewSet()
