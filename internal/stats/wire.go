package stats

import "github.com/google/wire"

// ProviderSet is the Wire provider set for stats.
var ProviderSet = wire.NewSet(NewSampler, NewStreamer)
