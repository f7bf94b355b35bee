package parser

import (
	"errors"
	"reflect"
	"testing"

	"github.com/inboxforge/inboxforge/internal/index"
	apperrors "github.com/inboxforge/inboxforge/pkg/errors"
)

func mustParse(t *testing.T, query string) Node {
	t.Helper()
	node, err := Parse(query)
	if err != nil {
		t.Fatalf("Parse(%q): %v", query, err)
	}
	return node
}

func TestParseGrammar(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Node
	}{
		{
			name:  "single term lowercased",
			query: "Report",
			want:  Term{Value: "report"},
		},
		{
			name:  "adjacency is implicit AND",
			query: "quarterly report",
			want:  And{Children: []Node{Term{Value: "quarterly"}, Term{Value: "report"}}},
		},
		{
			name:  "explicit AND",
			query: "quarterly AND report",
			want:  And{Children: []Node{Term{Value: "quarterly"}, Term{Value: "report"}}},
		},
		{
			name:  "AND binds tighter than OR",
			query: "a b OR c",
			want: Or{Children: []Node{
				And{Children: []Node{Term{Value: "a"}, Term{Value: "b"}}},
				Term{Value: "c"},
			}},
		},
		{
			name:  "keywords are case-insensitive",
			query: "a or b",
			want:  Or{Children: []Node{Term{Value: "a"}, Term{Value: "b"}}},
		},
		{
			name:  "NOT binds to the following atom",
			query: "report NOT draft",
			want: And{Children: []Node{
				Term{Value: "report"},
				Not{Expr: Term{Value: "draft"}},
			}},
		},
		{
			name:  "parentheses group",
			query: "a (b OR c)",
			want: And{Children: []Node{
				Term{Value: "a"},
				Or{Children: []Node{Term{Value: "b"}, Term{Value: "c"}}},
			}},
		},
		{
			name:  "NOT over a group",
			query: "NOT (a OR b)",
			want:  Not{Expr: Or{Children: []Node{Term{Value: "a"}, Term{Value: "b"}}}},
		},
		{
			name:  "quoted phrase",
			query: `"quarterly report"`,
			want:  Phrase{Terms: []string{"quarterly", "report"}},
		},
		{
			name:  "single-word phrase collapses to a term",
			query: `"report"`,
			want:  Term{Value: "report"},
		},
		{
			name:  "trailing wildcard",
			query: "meet*",
			want:  Wildcard{Prefix: "meet"},
		},
		{
			name:  "field scope with term",
			query: "subject:report",
			want:  FieldScope{Field: index.FieldSubject, Expr: Term{Value: "report"}},
		},
		{
			name:  "field scope with phrase",
			query: `sender:"alice example"`,
			want:  FieldScope{Field: index.FieldSender, Expr: Phrase{Terms: []string{"alice", "example"}}},
		},
		{
			name:  "field name is case-insensitive",
			query: "SUBJECT:report",
			want:  FieldScope{Field: index.FieldSubject, Expr: Term{Value: "report"}},
		},
		{
			name:  "hyphenated word behaves as a phrase",
			query: "mary-jane",
			want:  Phrase{Terms: []string{"mary", "jane"}},
		},
		{
			name:  "mixed query",
			query: `subject:report OR "annual meeting" NOT draft`,
			want: Or{Children: []Node{
				FieldScope{Field: index.FieldSubject, Expr: Term{Value: "report"}},
				And{Children: []Node{
					Phrase{Terms: []string{"annual", "meeting"}},
					Not{Expr: Term{Value: "draft"}},
				}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustParse(t, tt.query)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q)\n got: %#v\nwant: %#v", tt.query, got, tt.want)
			}
		})
	}
}

func TestParseSyntaxErrors(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantOffset int
	}{
		{"empty query", "", 0},
		{"blank query", "   ", 0},
		{"unterminated phrase", `report "quarterly`, 7},
		{"unbalanced parenthesis", "a (b OR c", 2},
		{"AND without right operand", "report AND", 7},
		{"OR without right operand", "report OR", 7},
		{"AND without left operand", "AND report", 0},
		{"OR without left operand", "or report", 0},
		{"AND inside group without left operand", "(AND report)", 1},
		{"NOT without operand", "NOT", 0},
		{"bare wildcard", "*", 0},
		{"infix wildcard", "me*t", 2},
		{"dangling close paren", "a ) b", 2},
		{"lone colon", ":", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.query)
			if !errors.Is(err, apperrors.ErrQuerySyntax) {
				t.Fatalf("Parse(%q) = %v, want ErrQuerySyntax", tt.query, err)
			}
			var synErr *apperrors.SyntaxError
			if !errors.As(err, &synErr) {
				t.Fatalf("Parse(%q) error is not a *SyntaxError: %v", tt.query, err)
			}
			if synErr.Offset != tt.wantOffset {
				t.Errorf("Parse(%q) offset = %d, want %d", tt.query, synErr.Offset, tt.wantOffset)
			}
		})
	}
}

func TestParseUnknownField(t *testing.T) {
	_, err := Parse("report attachment:big")
	if !errors.Is(err, apperrors.ErrUnknownField) {
		t.Fatalf("Parse = %v, want ErrUnknownField", err)
	}
	var fieldErr *apperrors.UnknownFieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("error is not an *UnknownFieldError: %v", err)
	}
	if fieldErr.Name != "attachment" || fieldErr.Offset != 7 {
		t.Errorf("got name=%q offset=%d, want attachment at 7", fieldErr.Name, fieldErr.Offset)
	}
}
