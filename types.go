package blueprintgen

import (
	"github.com/jward/blueprintgen/internal/config"
	"github.com/jward/blueprintgen/internal/diag"
	"github.com/jward/blueprintgen/internal/join"
	"github.com/jward/blueprintgen/internal/store"
)

// Public type aliases for internal types that appear in the Engine API.
// These are Go type aliases (=), identical to the internal types at compile
// time. External consumers use these names; no conversion is needed.

type Config = config.Config
type Store = store.Store
type Group = join.Group
type Entry = join.Entry
type Diagnostic = diag.Diagnostic
