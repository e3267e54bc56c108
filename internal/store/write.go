package store

import (
	"context"
	"fmt"

	"github.com/roach88/lpsuspend/internal/ir"
)

// RecordTransaction journals a finished transaction and its transitions in
// one SQL transaction. It implements engine.Recorder.
//
// Uses ON CONFLICT DO NOTHING for idempotency: recording the same ID twice
// keeps the first record.
func (s *Store) RecordTransaction(ctx context.Context, rec ir.TransactionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("record transaction: empty id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record transaction: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO transactions
		(id, platform, depth, outcome, error, raw_event, wake_cause, attempts, program_hash, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.Platform,
		rec.Depth,
		rec.Outcome,
		rec.Error,
		int64(rec.RawEvent),
		int64(rec.WakeCause),
		rec.Attempts,
		rec.ProgramHash,
		rec.Seq,
	)
	if err != nil {
		return fmt.Errorf("record transaction %s: %w", rec.ID, err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record transaction %s: rows affected: %w", rec.ID, err)
	}
	if inserted == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transitions (tx_id, seq, state, detail)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("record transaction %s: prepare transitions: %w", rec.ID, err)
	}
	defer stmt.Close()

	for _, tr := range rec.Transitions {
		if _, err := stmt.ExecContext(ctx, rec.ID, tr.Seq, tr.State, tr.Detail); err != nil {
			return fmt.Errorf("record transaction %s: transition %d: %w", rec.ID, tr.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record transaction %s: commit: %w", rec.ID, err)
	}
	return nil
}
