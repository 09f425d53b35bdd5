package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ReplaceGroups atomically replaces the whole persisted entry cache.
func (s *Store) ReplaceGroups(groups []*CachedGroup) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("replace groups: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM group_entries"); err != nil {
		return fmt.Errorf("replace groups: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM entry_groups"); err != nil {
		return fmt.Errorf("replace groups: %w", err)
	}
	for _, g := range groups {
		if err := insertGroupTx(tx, g); err != nil {
			return fmt.Errorf("replace groups: %s: %w", g.TypeID, err)
		}
	}
	return tx.Commit()
}

// SaveGroup upserts a single group, replacing any entries stored for it.
func (s *Store) SaveGroup(g *CachedGroup) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save group: begin: %w", err)
	}
	defer tx.Rollback()
	if err := deleteGroupTx(tx, g.TypeID); err != nil {
		return fmt.Errorf("save group %s: %w", g.TypeID, err)
	}
	if err := insertGroupTx(tx, g); err != nil {
		return fmt.Errorf("save group %s: %w", g.TypeID, err)
	}
	return tx.Commit()
}

// DeleteGroup removes one persisted group. Missing groups are not an error.
func (s *Store) DeleteGroup(typeID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("delete group: begin: %w", err)
	}
	defer tx.Rollback()
	if err := deleteGroupTx(tx, typeID); err != nil {
		return fmt.Errorf("delete group %s: %w", typeID, err)
	}
	return tx.Commit()
}

// AllGroups loads every persisted group ordered by type identity, entries in
// their stored order.
func (s *Store) AllGroups() ([]*CachedGroup, error) {
	rows, err := s.db.Query(`SELECT g.type_id, g.type_name,
			e.ordinal, e.entry_id, e.raw_name, e.sanitized_name, e.type_name, e.name
		FROM entry_groups g LEFT JOIN group_entries e ON e.type_id = g.type_id
		ORDER BY g.type_id, e.ordinal`)
	if err != nil {
		return nil, fmt.Errorf("all groups: %w", err)
	}
	defer rows.Close()

	var groups []*CachedGroup
	var cur *CachedGroup
	for rows.Next() {
		var typeID, typeName string
		var ordinal sql.NullInt64
		var entryID, rawName, sanitized, entryType, name sql.NullString
		if err := rows.Scan(&typeID, &typeName, &ordinal, &entryID, &rawName, &sanitized, &entryType, &name); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		if cur == nil || cur.TypeID != typeID {
			cur = &CachedGroup{TypeID: typeID, TypeName: typeName}
			groups = append(groups, cur)
		}
		if !entryID.Valid {
			continue
		}
		cur.Entries = append(cur.Entries, CachedEntry{
			Ordinal:       int(ordinal.Int64),
			EntryID:       entryID.String,
			RawName:       rawName.String,
			SanitizedName: sanitized.String,
			TypeName:      entryType.String,
			Name:          name.String,
		})
	}
	return groups, rows.Err()
}

func insertGroupTx(tx *sql.Tx, g *CachedGroup) error {
	if _, err := tx.Exec("INSERT INTO entry_groups (type_id, type_name) VALUES (?, ?)", g.TypeID, g.TypeName); err != nil {
		return err
	}
	for i, e := range g.Entries {
		if _, err := tx.Exec(
			`INSERT INTO group_entries (type_id, ordinal, entry_id, raw_name, sanitized_name, type_name, name)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			g.TypeID, i, e.EntryID, e.RawName, e.SanitizedName, e.TypeName, e.Name,
		); err != nil {
			return err
		}
	}
	return nil
}

func deleteGroupTx(tx *sql.Tx, typeID string) error {
	if _, err := tx.Exec("DELETE FROM group_entries WHERE type_id = ?", typeID); err != nil {
		return err
	}
	_, err := tx.Exec("DELETE FROM entry_groups WHERE type_id = ?", typeID)
	return err
}

// --- Emitted units ---

// UnitByName returns the last recorded emission for a unit, or nil.
func (s *Store) UnitByName(name string) (*EmittedUnit, error) {
	u := &EmittedUnit{}
	var writtenAt sql.NullTime
	err := s.db.QueryRow("SELECT name, path, hash, written_at FROM emitted_units WHERE name = ?", name).
		Scan(&u.Name, &u.Path, &u.Hash, &writtenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unit by name: %w", err)
	}
	u.WrittenAt = writtenAt.Time
	return u, nil
}

// UpsertUnit records the content hash written for a unit.
func (s *Store) UpsertUnit(u *EmittedUnit) error {
	if u.WrittenAt.IsZero() {
		u.WrittenAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO emitted_units (name, path, hash, written_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET path = excluded.path, hash = excluded.hash, written_at = excluded.written_at`,
		u.Name, u.Path, u.Hash, u.WrittenAt,
	)
	if err != nil {
		return fmt.Errorf("upsert unit %s: %w", u.Name, err)
	}
	return nil
}

// AllUnits returns every recorded unit ordered by name.
func (s *Store) AllUnits() ([]*EmittedUnit, error) {
	rows, err := s.db.Query("SELECT name, path, hash, written_at FROM emitted_units ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("all units: %w", err)
	}
	defer rows.Close()
	var units []*EmittedUnit
	for rows.Next() {
		u := &EmittedUnit{}
		var writtenAt sql.NullTime
		if err := rows.Scan(&u.Name, &u.Path, &u.Hash, &writtenAt); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		u.WrittenAt = writtenAt.Time
		units = append(units, u)
	}
	return units, rows.Err()
}

// DeleteUnit forgets a unit record.
func (s *Store) DeleteUnit(name string) error {
	if _, err := s.db.Exec("DELETE FROM emitted_units WHERE name = ?", name); err != nil {
		return fmt.Errorf("delete unit %s: %w", name, err)
	}
	return nil
}
