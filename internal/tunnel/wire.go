package tunnel

import "github.com/google/wire"

// ProviderSet is the Wire provider set for tunnel.
var ProviderSet = wire.NewSet(NewClient)
