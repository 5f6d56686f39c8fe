package workload

import "github.com/google/wire"

// ProviderSet is the Wire provider set for workload.
var ProviderSet = wire.NewSet(NewStore)
