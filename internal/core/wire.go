package core

import (
	"github.com/google/wire"
)

// ProviderSet is the Wire provider set for core. The package exposes
// only types and pure constructors with no dependencies, so there is
// nothing for Wire to inject; this exists for symmetry with the other
// per-package provider sets referenced by the top-level injector.
var ProviderSet = wire.NewSet()
