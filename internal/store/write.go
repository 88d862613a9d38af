package store

import (
	"context"
	"fmt"

	"github.com/roach88/brp/internal/session"
)

// Observe journals ex. It makes Store a session.Observer.
func (s *Store) Observe(ctx context.Context, ex session.Exchange) error {
	return s.WriteExchange(ctx, ex)
}

// WriteExchange records an exchange and, on first sight, its session.
// Uses ON CONFLICT DO NOTHING for idempotency: an exchange whose seq is
// already stored is silently ignored.
func (s *Store) WriteExchange(ctx context.Context, ex session.Exchange) error {
	if ex.Session == "" {
		return fmt.Errorf("write exchange %d: empty session label", ex.Seq)
	}
	reqJSON, err := marshalMessage(ex.Request)
	if err != nil {
		return fmt.Errorf("write exchange %d: request: %w", ex.Seq, err)
	}
	respJSON, err := marshalMessage(ex.Response)
	if err != nil {
		return fmt.Errorf("write exchange %d: response: %w", ex.Seq, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write exchange %d: begin tx: %w", ex.Seq, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (label, format, first_seq)
		VALUES (?, ?, ?)
		ON CONFLICT(label) DO NOTHING
	`, ex.Session, ex.Format.String(), ex.Seq)
	if err != nil {
		return fmt.Errorf("write exchange %d: session: %w", ex.Seq, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO exchanges
		(seq, tick, session, format, kind, request, response, error_code, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		ex.Seq,
		int64(ex.Tick),
		ex.Session,
		ex.Format.String(),
		string(ex.Request.Kind()),
		reqJSON,
		respJSON,
		errorCode(ex.Response),
		ex.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("write exchange %d: %w", ex.Seq, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write exchange %d: commit: %w", ex.Seq, err)
	}
	return nil
}
