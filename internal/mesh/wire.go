package mesh

import "github.com/google/wire"

// ProviderSet is the Wire provider set for mesh.
var ProviderSet = wire.NewSet(NewProxy)
