package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/brp/internal/brp"
	"github.com/roach88/brp/internal/session"
)

// Filter selects journaled exchanges. The zero Filter matches every
// exchange. Set fields are combined with AND.
type Filter struct {
	// Session restricts results to one session label.
	Session string

	// Kinds restricts results to the given request kinds.
	Kinds []brp.RequestKind

	// Errors keeps only exchanges answered with an error.
	Errors bool

	// Code keeps only exchanges answered with this error code.
	Code brp.ErrorCode

	// AfterSeq skips exchanges with seq <= AfterSeq.
	AfterSeq int64

	// Limit caps the number of results. Zero means no limit.
	Limit int
}

// compile returns the SQL for f and its parameters. Values are always
// bound, never interpolated, and results are always ordered by seq.
func (f Filter) compile() (string, []any, error) {
	if f.Limit < 0 {
		return "", nil, fmt.Errorf("limit must be non-negative, got %d", f.Limit)
	}

	var (
		clauses []string
		params  []any
	)
	if f.Session != "" {
		clauses = append(clauses, "session = ?")
		params = append(params, f.Session)
	}
	if len(f.Kinds) > 0 {
		marks := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			marks[i] = "?"
			params = append(params, string(k))
		}
		clauses = append(clauses, "kind IN ("+strings.Join(marks, ", ")+")")
	}
	if f.Errors {
		clauses = append(clauses, "error_code IS NOT NULL")
	}
	if f.Code != "" {
		clauses = append(clauses, "error_code = ?")
		params = append(params, string(f.Code))
	}
	if f.AfterSeq > 0 {
		clauses = append(clauses, "seq > ?")
		params = append(params, f.AfterSeq)
	}

	var b strings.Builder
	b.WriteString("SELECT seq, tick, session, format, request, response, duration_ns FROM exchanges")
	if len(clauses) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(clauses, " AND "))
	}
	b.WriteString(" ORDER BY seq ASC")
	if f.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, f.Limit)
	}
	return b.String(), params, nil
}

// Find returns the exchanges matching f, ordered by seq ASC.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) Find(ctx context.Context, f Filter) ([]session.Exchange, error) {
	query, params, err := f.compile()
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer rows.Close()

	out := []session.Exchange{}
	for rows.Next() {
		ex, err := scanExchange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchanges: %w", err)
	}
	return out, nil
}
