package hostresolver

import "github.com/google/wire"

// ProviderSet is the Wire provider set for hostresolver. It binds the
// Directory interface to the in-memory implementation, since no
// redis-backed implementation exists in this codebase. NewResolver
// itself is not included here: it takes a bare publicIP string, which
// would be ambiguous against other config-derived strings in Wire's
// graph, so internal/cmd provides it through a small wrapper instead
// (the same pattern used for provideIdentityStore).
var ProviderSet = wire.NewSet(
	NewInMemoryDirectory,
	wire.Bind(new(Directory), new(*InMemoryDirectory)),
)
