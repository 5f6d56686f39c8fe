package identity

import "github.com/google/wire"

// ProviderSet is the Wire provider set for identity.
var ProviderSet = wire.NewSet(NewStore)
