package customfield

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var attributes = []string{"position", "market_value_res", "portfolio", "pl", "total", "full", "principal", "instrument", "user_code"}

func sampleItem() map[string]any {
	return map[string]any{
		"position":         60.0,
		"market_value_res": 660.0,
		"portfolio":        "P1",
		"instrument":       map[string]any{"user_code": "ACME"},
		"pl": map[string]any{
			"total": map[string]any{"full": map[string]any{"principal": -140.0}},
		},
		"secret": "hidden",
	}
}

func TestEvaluate(t *testing.T) {
	fields := []Field{
		{UserCode: "mv_k", Expression: "item.market_value_res / 1000"},
		{UserCode: "big", Expression: `abs(item.pl.total.full.principal) > 100 && item.portfolio == "P1"`},
		{UserCode: "code", Expression: "item.instrument.user_code"},
		{UserCode: "max", Expression: "max(item.position, 100, 3)"},
		{UserCode: "sum", Expression: "sum(1, 2, item.position)"},
		{UserCode: "len", Expression: "len(item.portfolio)"},
		{UserCode: "path", Expression: "$.item.position * 2"},
	}
	e := New(fields, attributes)
	got := e.Evaluate(context.Background(), sampleItem())
	want := []Value{
		{"mv_k", 0.66},
		{"big", true},
		{"code", "ACME"},
		{"max", 100.0},
		{"sum", 63.0},
		{"len", 2.0},
		{"path", 120.0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Evaluate() mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateInvalid(t *testing.T) {
	fields := []Field{
		{UserCode: "unknown_attr", Expression: "item.secret"},
		{UserCode: "unknown_name", Expression: "os.Exit(1)"},
		{UserCode: "index", Expression: `item["secret"]`},
		{UserCode: "root", Expression: "$.secret"},
		{UserCode: "syntax", Expression: "item.position +"},
		{UserCode: "runtime", Expression: "abs(item.portfolio)"},
		{UserCode: "empty", Expression: "  "},
	}
	e := New(fields, attributes)
	for i, v := range e.Evaluate(context.Background(), sampleItem()) {
		if v.Value != InvalidExpression {
			t.Errorf("field %s = %v, want the invalid marker", fields[i].UserCode, v.Value)
		}
	}
	for i, err := range e.Errors()[:5] {
		if err == nil {
			t.Errorf("field %s compiled, want an error", fields[i].UserCode)
		}
	}
	if err := e.Errors()[0]; !errors.Is(err, ErrForbidden) {
		t.Errorf("unknown attribute error = %v, want ErrForbidden", err)
	}
}

func TestMarker(t *testing.T) {
	e := New([]Field{{UserCode: "x", Expression: "nope"}}, attributes, WithMarker("Expression invalide"))
	got := e.Evaluate(context.Background(), sampleItem())
	if got[0].Value != "Expression invalide" {
		t.Errorf("got %v, want the localised marker", got[0].Value)
	}
}

func TestTimeLimit(t *testing.T) {
	e := New([]Field{{UserCode: "x", Expression: "item.position"}}, attributes, WithLimit(-time.Nanosecond))
	got := e.Evaluate(context.Background(), sampleItem())
	if got[0].Value != InvalidExpression {
		t.Errorf("got %v, want the marker when the budget is exhausted", got[0].Value)
	}
}

func TestCheckDepth(t *testing.T) {
	expr := ""
	for i := 0; i <= maxDepth; i++ {
		expr += "("
	}
	expr += "1"
	for i := 0; i <= maxDepth; i++ {
		expr += ")"
	}
	if err := check(expr, nil); !errors.Is(err, ErrForbidden) {
		t.Errorf("check(deep) = %v, want ErrForbidden", err)
	}
}
