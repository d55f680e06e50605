package indexdb

import "context"

type EditRow struct {
	Tick     uint64
	PlayerID string
	Kind     string
	Seq      int64
	Target   int64
	Tool     string
	Cells    int
	Aborted  bool
}

// Edits returns the finished edits of player in tick order; an empty player
// returns every edit.
func (s *SQLiteIndex) Edits(ctx context.Context, player string) ([]EditRow, error) {
	if err := s.Sync(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT tick, player_id, kind, edit_seq, target, COALESCE(tool,''), cells, aborted
		FROM edits WHERE ? = '' OR player_id = ? ORDER BY tick, seq`, player, player)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EditRow
	for rows.Next() {
		var r EditRow
		var aborted int
		if err := rows.Scan(&r.Tick, &r.PlayerID, &r.Kind, &r.Seq, &r.Target, &r.Tool, &r.Cells, &aborted); err != nil {
			return nil, err
		}
		r.Aborted = aborted != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

type SnapshotRow struct {
	Tick   uint64
	Path   string
	Chunks int
	Reason string
}

func (s *SQLiteIndex) Snapshots(ctx context.Context) ([]SnapshotRow, error) {
	if err := s.Sync(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT tick, path, chunks, reason FROM snapshots ORDER BY tick`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		if err := rows.Scan(&r.Tick, &r.Path, &r.Chunks, &r.Reason); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AuditCount is the number of audit rows of player.
func (s *SQLiteIndex) AuditCount(ctx context.Context, player string) (int, error) {
	if err := s.Sync(ctx); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audits WHERE player_id = ?`, player).Scan(&n)
	return n, err
}
