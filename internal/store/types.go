package store

import "time"

// Snapshot domain types

type File struct {
	ID          int64
	Path        string
	Language    string
	PackagePath string
	Hash        string
	LineCount   int
	LastIndexed time.Time
}

type Symbol struct {
	ID             int64
	FileID         *int64
	Name           string
	Kind           string
	Visibility     string
	Modifiers      []string
	TypeExpr       string
	SignatureHash  string
	StartLine      int
	StartCol       int
	EndLine        int
	EndCol         int
	ParentSymbolID *int64
}

type Reference struct {
	ID        int64
	FileID    int64
	Name      string
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
	Context   string
}

type TypeMember struct {
	ID         int64
	SymbolID   int64
	Name       string
	Kind       string
	TypeExpr   string
	Visibility string
}

type FunctionParam struct {
	ID         int64
	SymbolID   int64
	Name       string
	Ordinal    int
	TypeExpr   string
	IsReceiver bool
	IsReturn   bool
}

type TypeParam struct {
	ID          int64
	SymbolID    int64
	Name        string
	Ordinal     int
	Constraints string
}

// Session domain types

// CachedEntry is one persisted row of a cached entry group.
type CachedEntry struct {
	Ordinal       int
	EntryID       string
	RawName       string
	SanitizedName string
	TypeName      string
	Name          string
}

// CachedGroup is a persisted entry group keyed by canonical type identity.
type CachedGroup struct {
	TypeID   string
	TypeName string
	Entries  []CachedEntry
}

// EmittedUnit records the content hash of the last unit written under a name.
type EmittedUnit struct {
	Name      string
	Path      string
	Hash      string
	WrittenAt time.Time
}
