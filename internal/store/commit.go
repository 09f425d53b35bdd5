package store

import (
	"database/sql"
	"fmt"
)

// CommitBatch inserts all buffered data from a BatchedStore into SQLite
// within a single transaction. Fake (negative) symbol IDs are remapped to the
// real IDs SQLite assigns, and every symbol_id in the batch is rewritten.
//
// Symbols go first so members, parameters and type parameters can be
// remapped. References depend only on the already-real file_id.
func (s *Store) CommitBatch(batch *BatchedStore) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	fakeToReal := make(map[int64]int64, len(batch.Symbols))
	remap := func(id int64) (int64, error) {
		if id >= 0 {
			return id, nil
		}
		realID, ok := fakeToReal[id]
		if !ok {
			return 0, fmt.Errorf("symbol_id=%d not in batch (have %d symbols)", id, len(batch.Symbols))
		}
		return realID, nil
	}

	for _, sym := range batch.Symbols {
		if sym.ParentSymbolID != nil && *sym.ParentSymbolID < 0 {
			parent, err := remap(*sym.ParentSymbolID)
			if err != nil {
				return fmt.Errorf("commit batch: symbol %q: %w", sym.Name, err)
			}
			sym.ParentSymbolID = &parent
		}
		realID, err := insertSymbolTx(tx, &sym)
		if err != nil {
			return fmt.Errorf("commit batch: symbol %q: %w", sym.Name, err)
		}
		fakeToReal[sym.ID] = realID
	}

	for _, ref := range batch.References {
		if err := execTx(tx,
			`INSERT INTO references_ (file_id, name, start_line, start_col, end_line, end_col, context)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ref.FileID, ref.Name, ref.StartLine, ref.StartCol, ref.EndLine, ref.EndCol, ref.Context,
		); err != nil {
			return fmt.Errorf("commit batch: reference %q: %w", ref.Name, err)
		}
	}

	for _, tm := range batch.TypeMembers {
		symID, err := remap(tm.SymbolID)
		if err != nil {
			return fmt.Errorf("commit batch: type member %q: %w", tm.Name, err)
		}
		if err := execTx(tx,
			"INSERT INTO type_members (symbol_id, name, kind, type_expr, visibility) VALUES (?, ?, ?, ?, ?)",
			symID, tm.Name, tm.Kind, tm.TypeExpr, tm.Visibility,
		); err != nil {
			return fmt.Errorf("commit batch: type member %q: %w", tm.Name, err)
		}
	}

	for _, fp := range batch.FunctionParams {
		symID, err := remap(fp.SymbolID)
		if err != nil {
			return fmt.Errorf("commit batch: function param %q: %w", fp.Name, err)
		}
		if err := execTx(tx,
			`INSERT INTO function_parameters (symbol_id, name, ordinal, type_expr, is_receiver, is_return)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			symID, fp.Name, fp.Ordinal, fp.TypeExpr, fp.IsReceiver, fp.IsReturn,
		); err != nil {
			return fmt.Errorf("commit batch: function param %q: %w", fp.Name, err)
		}
	}

	for _, tp := range batch.TypeParams {
		symID, err := remap(tp.SymbolID)
		if err != nil {
			return fmt.Errorf("commit batch: type param %q: %w", tp.Name, err)
		}
		if err := execTx(tx,
			"INSERT INTO type_parameters (symbol_id, name, ordinal, constraints) VALUES (?, ?, ?, ?)",
			symID, tp.Name, tp.Ordinal, tp.Constraints,
		); err != nil {
			return fmt.Errorf("commit batch: type param %q: %w", tp.Name, err)
		}
	}

	return tx.Commit()
}

func insertSymbolTx(tx *sql.Tx, sym *Symbol) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO symbols (file_id, name, kind, visibility, modifiers, type_expr, signature_hash,
			start_line, start_col, end_line, end_col, parent_symbol_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sym.FileID, sym.Name, sym.Kind, sym.Visibility, marshalModifiers(sym.Modifiers), sym.TypeExpr,
		sym.SignatureHash, sym.StartLine, sym.StartCol, sym.EndLine, sym.EndCol, sym.ParentSymbolID,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func execTx(tx *sql.Tx, query string, args ...any) error {
	_, err := tx.Exec(query, args...)
	return err
}
