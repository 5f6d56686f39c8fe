package cryptoutil

import "github.com/google/wire"

// ProviderSet is the Wire provider set for cryptoutil. The package
// exposes only pure functions, so there is nothing to construct; this
// exists purely for symmetry with the other per-package provider sets
// that Wire's injectors reference.
var ProviderSet = wire.NewSet()
