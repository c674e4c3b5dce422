package recovery

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestStrictStrategyFails(t *testing.T) {
	s := NewStrictStrategy()
	if got := s.OnError(context.Background(), errors.New("x"), Location{Component: "detect"}); got != ActionFail {
		t.Fatalf("OnError() = %v, want ActionFail", got)
	}
}

func TestLenientStrategySkipsAndRecords(t *testing.T) {
	s := NewLenientStrategy(nil)
	loc := Location{Component: "detect", RowStart: 2000, RowEnd: 4000}
	if got := s.OnError(context.Background(), errors.New("engine crashed"), loc); got != ActionSkip {
		t.Fatalf("OnError() = %v, want ActionSkip", got)
	}
	errs := s.Errors()
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "detect rows 2000-4000") {
		t.Fatalf("errors = %v", errs)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := s.OnError(ctx, context.Canceled, loc); got != ActionFail {
		t.Fatalf("canceled context must fail, got %v", got)
	}
}

func TestForName(t *testing.T) {
	for name, want := range map[string]string{"": "*recovery.StrictStrategy", Strict: "*recovery.StrictStrategy", Lenient: "*recovery.LenientStrategy"} {
		s, err := ForName(name, nil)
		if err != nil {
			t.Fatalf("ForName(%q) error = %v", name, err)
		}
		switch s.(type) {
		case *StrictStrategy:
			if want != "*recovery.StrictStrategy" {
				t.Fatalf("ForName(%q) = strict", name)
			}
		case *LenientStrategy:
			if want != "*recovery.LenientStrategy" {
				t.Fatalf("ForName(%q) = lenient", name)
			}
		}
	}
	if _, err := ForName("retry", nil); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}
