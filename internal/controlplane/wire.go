package controlplane

import "github.com/google/wire"

// ProviderSet is the Wire provider set for controlplane.
var ProviderSet = wire.NewSet(NewClient)
