package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/roach88/brp/internal/brp"
	"github.com/roach88/brp/internal/session"
)

// SessionInfo summarises one journaled session.
type SessionInfo struct {
	Label     string
	Format    brp.Format
	Exchanges int
	Errors    int
	FirstSeq  int64
	LastSeq   int64
}

// ReadExchanges returns the exchanges of the session with the given label,
// or of every session when label is empty. Results are ordered by seq ASC.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ReadExchanges(ctx context.Context, label string) ([]session.Exchange, error) {
	return s.Find(ctx, Filter{Session: label})
}

func scanExchange(rows *sql.Rows) (session.Exchange, error) {
	var (
		ex               session.Exchange
		tick, durationNS int64
		format           string
		reqJSON          string
		respJSON         string
	)
	if err := rows.Scan(&ex.Seq, &tick, &ex.Session, &format, &reqJSON, &respJSON, &durationNS); err != nil {
		return session.Exchange{}, fmt.Errorf("scan exchange: %w", err)
	}

	f, err := brp.ParseFormat(format)
	if err != nil {
		return session.Exchange{}, fmt.Errorf("exchange %d: %w", ex.Seq, err)
	}
	if ex.Request, err = unmarshalRequest(reqJSON); err != nil {
		return session.Exchange{}, fmt.Errorf("exchange %d: %w", ex.Seq, err)
	}
	if ex.Response, err = unmarshalResponse(respJSON); err != nil {
		return session.Exchange{}, fmt.Errorf("exchange %d: %w", ex.Seq, err)
	}
	ex.Tick = uint64(tick)
	ex.Format = f
	ex.Duration = time.Duration(durationNS)
	return ex, nil
}

// Sessions lists journaled sessions ordered by their first exchange.
func (s *Store) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.label, s.format, COUNT(e.seq), COUNT(e.error_code),
		       s.first_seq, COALESCE(MAX(e.seq), s.first_seq)
		FROM sessions s
		LEFT JOIN exchanges e ON e.session = s.label
		GROUP BY s.label
		ORDER BY s.first_seq ASC, s.label COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := []SessionInfo{}
	for rows.Next() {
		var (
			info   SessionInfo
			format string
		)
		if err := rows.Scan(&info.Label, &format, &info.Exchanges, &info.Errors, &info.FirstSeq, &info.LastSeq); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if info.Format, err = brp.ParseFormat(format); err != nil {
			return nil, fmt.Errorf("session %q: %w", info.Label, err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// LastSeq returns the highest journaled seq, or 0 for an empty journal.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM exchanges").Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

// LastTick returns the highest journaled tick, or 0 for an empty journal.
func (s *Store) LastTick(ctx context.Context) (int64, error) {
	var tick int64
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(tick), 0) FROM exchanges").Scan(&tick); err != nil {
		return 0, fmt.Errorf("last tick: %w", err)
	}
	return tick, nil
}

// Sequencer returns a session.Sequencer that continues after LastSeq, so
// a restarted server appends to the journal instead of colliding with it.
func (s *Store) Sequencer(ctx context.Context) (session.Sequencer, error) {
	last, err := s.LastSeq(ctx)
	if err != nil {
		return nil, err
	}
	seq := &sequencer{}
	seq.n.Store(last)
	return seq, nil
}

type sequencer struct{ n atomic.Int64 }

func (q *sequencer) Next() int64 { return q.n.Add(1) }
