package store

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/brp/internal/brp"
	"github.com/roach88/brp/internal/session"
)

func failed(seq int64, label string, code brp.ErrorCode) session.Exchange {
	ex := ping(seq, label)
	ex.Request = brp.Request{ID: uint64(seq), Content: brp.DestroyEntity{Entity: 99}}
	ex.Response = brp.ResponseFromError(uint64(seq), brp.NewError(code))
	return ex
}

func TestFilter_Compile(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		where  string
		params []any
	}{
		{
			name:   "zero filter",
			filter: Filter{},
			where:  " ORDER BY seq ASC",
		},
		{
			name:   "session",
			filter: Filter{Session: "a"},
			where:  " WHERE session = ? ORDER BY seq ASC",
			params: []any{"a"},
		},
		{
			name:   "kinds",
			filter: Filter{Kinds: []brp.RequestKind{brp.KindPing, brp.KindGetEntity}},
			where:  " WHERE kind IN (?, ?) ORDER BY seq ASC",
			params: []any{"Ping", "GetEntity"},
		},
		{
			name:   "everything",
			filter: Filter{Session: "a", Errors: true, Code: brp.CodeEntityNotFound, AfterSeq: 3, Limit: 10},
			where:  " WHERE session = ? AND error_code IS NOT NULL AND error_code = ? AND seq > ? ORDER BY seq ASC LIMIT ?",
			params: []any{"a", "EntityNotFound", int64(3), 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, params, err := tt.filter.compile()
			if err != nil {
				t.Fatalf("compile() failed: %v", err)
			}
			where := strings.TrimPrefix(query, "SELECT seq, tick, session, format, request, response, duration_ns FROM exchanges")
			if where != tt.where {
				t.Errorf("query tail = %q, want %q", where, tt.where)
			}
			if diff := cmp.Diff(tt.params, params); diff != "" {
				t.Errorf("params mismatch (-want +got):\n%s", diff)
			}
			if strings.Contains(query, "'") {
				t.Errorf("query interpolates a literal: %s", query)
			}
		})
	}

	if _, _, err := (Filter{Limit: -1}).compile(); err == nil {
		t.Error("compile() accepted a negative limit")
	}
}

func TestFind(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, ex := range []session.Exchange{
		ping(1, "a"),
		failed(2, "a", brp.CodeEntityNotFound),
		ping(3, "b"),
		failed(4, "b", brp.CodeInvalidEntity),
		ping(5, "a"),
	} {
		if err := s.WriteExchange(ctx, ex); err != nil {
			t.Fatalf("WriteExchange(%d) failed: %v", ex.Seq, err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   []int64
	}{
		{"all", Filter{}, []int64{1, 2, 3, 4, 5}},
		{"session", Filter{Session: "a"}, []int64{1, 2, 5}},
		{"kind", Filter{Kinds: []brp.RequestKind{brp.KindDestroyEntity}}, []int64{2, 4}},
		{"errors", Filter{Errors: true}, []int64{2, 4}},
		{"code", Filter{Code: brp.CodeInvalidEntity}, []int64{4}},
		{"after", Filter{AfterSeq: 3}, []int64{4, 5}},
		{"limit", Filter{Session: "a", Limit: 2}, []int64{1, 2}},
		{"no match", Filter{Session: "c"}, []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Find(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Find() failed: %v", err)
			}
			seqs := make([]int64, len(got))
			for i, ex := range got {
				seqs[i] = ex.Seq
			}
			if diff := cmp.Diff(tt.want, seqs); diff != "" {
				t.Errorf("seqs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
