package store

import (
	"database/sql"
	"fmt"
)

// --- File operations ---

const fileCols = "id, path, language, package_path, hash, line_count, last_indexed"

func (s *Store) InsertFile(f *File) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO files (path, language, package_path, hash, line_count, last_indexed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.Path, f.Language, f.PackagePath, f.Hash, f.LineCount, f.LastIndexed,
	)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	return id, nil
}

func scanFile(scanner interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	var pkgPath sql.NullString
	if err := scanner.Scan(&f.ID, &f.Path, &f.Language, &pkgPath, &f.Hash, &f.LineCount, &f.LastIndexed); err != nil {
		return nil, err
	}
	f.PackagePath = pkgPath.String
	return f, nil
}

func (s *Store) FileByPath(path string) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileCols+" FROM files WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

func (s *Store) queryFiles(query string, args ...any) ([]*File, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// AllFiles returns every indexed file ordered by path.
func (s *Store) AllFiles() ([]*File, error) {
	files, err := s.queryFiles("SELECT " + fileCols + " FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("all files: %w", err)
	}
	return files, nil
}

// --- Symbol operations ---

func (s *Store) InsertSymbol(sym *Symbol) (int64, error) {
	mods := marshalModifiers(sym.Modifiers)
	res, err := s.db.Exec(
		`INSERT INTO symbols (file_id, name, kind, visibility, modifiers, type_expr, signature_hash,
			start_line, start_col, end_line, end_col, parent_symbol_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sym.FileID, sym.Name, sym.Kind, sym.Visibility, mods, sym.TypeExpr, sym.SignatureHash,
		sym.StartLine, sym.StartCol, sym.EndLine, sym.EndCol, sym.ParentSymbolID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert symbol: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	sym.ID = id
	return id, nil
}

func (s *Store) scanSymbol(scanner interface{ Scan(...any) error }) (*Symbol, error) {
	sym := &Symbol{}
	var mods, typeExpr, sigHash sql.NullString
	err := scanner.Scan(
		&sym.ID, &sym.FileID, &sym.Name, &sym.Kind, &sym.Visibility, &mods, &typeExpr,
		&sigHash, &sym.StartLine, &sym.StartCol, &sym.EndLine, &sym.EndCol,
		&sym.ParentSymbolID,
	)
	if err != nil {
		return nil, err
	}
	sym.Modifiers = unmarshalModifiers(mods.String)
	sym.TypeExpr = typeExpr.String
	sym.SignatureHash = sigHash.String
	return sym, nil
}

// SymbolCols is the column list for symbol queries.
const SymbolCols = `id, file_id, name, kind, visibility, modifiers, type_expr, signature_hash,
	start_line, start_col, end_line, end_col, parent_symbol_id`

func (s *Store) querySymbols(query string, args ...any) ([]*Symbol, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var symbols []*Symbol
	for rows.Next() {
		sym, err := s.scanSymbol(rows)
		if err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

func (s *Store) SymbolsByFile(fileID int64) ([]*Symbol, error) {
	return s.querySymbols("SELECT "+SymbolCols+" FROM symbols WHERE file_id = ? ORDER BY start_line, start_col, id", fileID)
}

// AllSymbols returns every symbol ordered by file path, then source position.
func (s *Store) AllSymbols() ([]*Symbol, error) {
	return s.querySymbols(`SELECT ` + prefixCols("s.", SymbolCols) + `
		FROM symbols s JOIN files f ON f.id = s.file_id
		ORDER BY f.path, s.start_line, s.start_col, s.id`)
}

// --- Reference operations ---

func (s *Store) InsertReference(ref *Reference) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO references_ (file_id, name, start_line, start_col, end_line, end_col, context)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ref.FileID, ref.Name, ref.StartLine, ref.StartCol, ref.EndLine, ref.EndCol, ref.Context,
	)
	if err != nil {
		return 0, fmt.Errorf("insert reference: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	ref.ID = id
	return id, nil
}

func (s *Store) queryReferences(query string, args ...any) ([]*Reference, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []*Reference
	for rows.Next() {
		ref := &Reference{}
		var refCtx sql.NullString
		if err := rows.Scan(&ref.ID, &ref.FileID, &ref.Name,
			&ref.StartLine, &ref.StartCol, &ref.EndLine, &ref.EndCol, &refCtx); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		ref.Context = refCtx.String
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

const referenceCols = "id, file_id, name, start_line, start_col, end_line, end_col, context"

func (s *Store) ReferencesByFile(fileID int64) ([]*Reference, error) {
	return s.queryReferences("SELECT "+referenceCols+" FROM references_ WHERE file_id = ? ORDER BY id", fileID)
}

// ReferencesByContext returns all references recorded with the given context
// (for example "call"), ordered by file path and position.
func (s *Store) ReferencesByContext(refContext string) ([]*Reference, error) {
	return s.queryReferences(`SELECT `+prefixCols("r.", referenceCols)+`
		FROM references_ r JOIN files f ON f.id = r.file_id
		WHERE r.context = ?
		ORDER BY f.path, r.start_line, r.start_col`, refContext)
}

// --- TypeMember operations ---

func (s *Store) InsertTypeMember(tm *TypeMember) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO type_members (symbol_id, name, kind, type_expr, visibility) VALUES (?, ?, ?, ?, ?)",
		tm.SymbolID, tm.Name, tm.Kind, tm.TypeExpr, tm.Visibility,
	)
	if err != nil {
		return 0, fmt.Errorf("insert type member: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	tm.ID = id
	return id, nil
}

func (s *Store) queryTypeMembers(query string, args ...any) ([]*TypeMember, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("type members: %w", err)
	}
	defer rows.Close()
	var members []*TypeMember
	for rows.Next() {
		tm := &TypeMember{}
		var typeExpr, vis sql.NullString
		if err := rows.Scan(&tm.ID, &tm.SymbolID, &tm.Name, &tm.Kind, &typeExpr, &vis); err != nil {
			return nil, fmt.Errorf("scan type member: %w", err)
		}
		tm.TypeExpr = typeExpr.String
		tm.Visibility = vis.String
		members = append(members, tm)
	}
	return members, rows.Err()
}

// TypeMembers returns the members of one symbol in declaration order.
func (s *Store) TypeMembers(symbolID int64) ([]*TypeMember, error) {
	return s.queryTypeMembers(
		"SELECT id, symbol_id, name, kind, type_expr, visibility FROM type_members WHERE symbol_id = ? ORDER BY id",
		symbolID,
	)
}

// AllTypeMembers returns every type member grouped by owning symbol, each
// group in declaration order.
func (s *Store) AllTypeMembers() (map[int64][]*TypeMember, error) {
	members, err := s.queryTypeMembers("SELECT id, symbol_id, name, kind, type_expr, visibility FROM type_members ORDER BY symbol_id, id")
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]*TypeMember)
	for _, tm := range members {
		out[tm.SymbolID] = append(out[tm.SymbolID], tm)
	}
	return out, nil
}

// --- FunctionParam operations ---

func (s *Store) InsertFunctionParam(fp *FunctionParam) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO function_parameters (symbol_id, name, ordinal, type_expr, is_receiver, is_return)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		fp.SymbolID, fp.Name, fp.Ordinal, fp.TypeExpr, fp.IsReceiver, fp.IsReturn,
	)
	if err != nil {
		return 0, fmt.Errorf("insert function param: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	fp.ID = id
	return id, nil
}

func (s *Store) queryFunctionParams(query string, args ...any) ([]*FunctionParam, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("function params: %w", err)
	}
	defer rows.Close()
	var params []*FunctionParam
	for rows.Next() {
		fp := &FunctionParam{}
		var name, typeExpr sql.NullString
		if err := rows.Scan(&fp.ID, &fp.SymbolID, &name, &fp.Ordinal, &typeExpr, &fp.IsReceiver, &fp.IsReturn); err != nil {
			return nil, fmt.Errorf("scan function param: %w", err)
		}
		fp.Name = name.String
		fp.TypeExpr = typeExpr.String
		params = append(params, fp)
	}
	return params, rows.Err()
}

const functionParamCols = "id, symbol_id, name, ordinal, type_expr, is_receiver, is_return"

func (s *Store) FunctionParams(symbolID int64) ([]*FunctionParam, error) {
	return s.queryFunctionParams("SELECT "+functionParamCols+" FROM function_parameters WHERE symbol_id = ? ORDER BY ordinal", symbolID)
}

// AllFunctionParams returns every parameter grouped by owning symbol, ordered
// by ordinal.
func (s *Store) AllFunctionParams() (map[int64][]*FunctionParam, error) {
	params, err := s.queryFunctionParams("SELECT " + functionParamCols + " FROM function_parameters ORDER BY symbol_id, ordinal")
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]*FunctionParam)
	for _, fp := range params {
		out[fp.SymbolID] = append(out[fp.SymbolID], fp)
	}
	return out, nil
}

// --- TypeParam operations ---

func (s *Store) InsertTypeParam(tp *TypeParam) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO type_parameters (symbol_id, name, ordinal, constraints) VALUES (?, ?, ?, ?)",
		tp.SymbolID, tp.Name, tp.Ordinal, tp.Constraints,
	)
	if err != nil {
		return 0, fmt.Errorf("insert type param: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	tp.ID = id
	return id, nil
}

func (s *Store) queryTypeParams(query string, args ...any) ([]*TypeParam, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("type params: %w", err)
	}
	defer rows.Close()
	var params []*TypeParam
	for rows.Next() {
		tp := &TypeParam{}
		var constraints sql.NullString
		if err := rows.Scan(&tp.ID, &tp.SymbolID, &tp.Name, &tp.Ordinal, &constraints); err != nil {
			return nil, fmt.Errorf("scan type param: %w", err)
		}
		tp.Constraints = constraints.String
		params = append(params, tp)
	}
	return params, rows.Err()
}

func (s *Store) TypeParams(symbolID int64) ([]*TypeParam, error) {
	return s.queryTypeParams("SELECT id, symbol_id, name, ordinal, constraints FROM type_parameters WHERE symbol_id = ? ORDER BY ordinal", symbolID)
}

// AllTypeParams returns every type parameter grouped by owning symbol.
func (s *Store) AllTypeParams() (map[int64][]*TypeParam, error) {
	params, err := s.queryTypeParams("SELECT id, symbol_id, name, ordinal, constraints FROM type_parameters ORDER BY symbol_id, ordinal")
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]*TypeParam)
	for _, tp := range params {
		out[tp.SymbolID] = append(out[tp.SymbolID], tp)
	}
	return out, nil
}
