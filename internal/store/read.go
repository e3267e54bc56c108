package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/lpsuspend/internal/ir"
)

// ErrNotFound is returned when a transaction ID is not in the journal.
var ErrNotFound = errors.New("transaction not found")

// ListOptions filters ListTransactions.
type ListOptions struct {
	Platform string // Empty matches every platform
	Outcome  string // Empty matches every outcome
	Limit    int    // 0 = no limit; otherwise the most recent Limit records
}

const transactionColumns = `id, platform, depth, outcome, error, raw_event, wake_cause, attempts, program_hash, seq`

// ReadTransaction returns one transaction with its transitions in seq order.
func (s *Store) ReadTransaction(ctx context.Context, id string) (ir.TransactionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = ?
	`, id)

	rec, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.TransactionRecord{}, fmt.Errorf("read transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.TransactionRecord{}, fmt.Errorf("read transaction %s: %w", id, err)
	}

	rec.Transitions, err = s.ReadTransitions(ctx, id)
	if err != nil {
		return ir.TransactionRecord{}, err
	}
	return rec, nil
}

// ReadTransitions returns the transitions of one transaction in seq order.
// Returns an empty slice (not nil) for an unknown ID.
func (s *Store) ReadTransitions(ctx context.Context, id string) ([]ir.Transition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, state, detail
		FROM transitions
		WHERE tx_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	transitions := []ir.Transition{}
	for rows.Next() {
		var tr ir.Transition
		if err := rows.Scan(&tr.Seq, &tr.State, &tr.Detail); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		transitions = append(transitions, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return transitions, nil
}

// ListTransactions returns journal records without their transitions,
// oldest first.
func (s *Store) ListTransactions(ctx context.Context, opts ListOptions) ([]ir.TransactionRecord, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	var args []any
	if opts.Platform != "" {
		query += ` AND platform = ?`
		args = append(args, opts.Platform)
	}
	if opts.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, opts.Outcome)
	}
	if opts.Limit > 0 {
		// Most recent Limit rows, still returned oldest first.
		query = `SELECT * FROM (` + query + ` ORDER BY seq DESC, id DESC LIMIT ?)`
		args = append(args, opts.Limit)
	}
	query += ` ORDER BY seq ASC, id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	records := []ir.TransactionRecord{}
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return records, nil
}

// LastSeq returns the highest seq in the journal, or 0 when it is empty.
// engine.NewClockAt(LastSeq) continues numbering after a restart.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM (
			SELECT seq FROM transactions
			UNION ALL
			SELECT seq FROM transitions
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq.Int64, nil
}

// CountByOutcome returns how many transactions ended with each outcome
// code: "ok" for success, the error code otherwise.
func (s *Store) CountByOutcome(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT CASE WHEN error = '' THEN outcome ELSE error END AS code, COUNT(*)
		FROM transactions
		GROUP BY code
		ORDER BY code COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			code string
			n    int
		)
		if err := rows.Scan(&code, &n); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		counts[code] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return counts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (ir.TransactionRecord, error) {
	var (
		rec       ir.TransactionRecord
		rawEvent  int64
		wakeCause int64
	)
	err := row.Scan(
		&rec.ID,
		&rec.Platform,
		&rec.Depth,
		&rec.Outcome,
		&rec.Error,
		&rawEvent,
		&wakeCause,
		&rec.Attempts,
		&rec.ProgramHash,
		&rec.Seq,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan transaction: %w", err)
	}
	rec.RawEvent = uint32(rawEvent)
	rec.WakeCause = uint32(wakeCause)
	return rec, nil
}
