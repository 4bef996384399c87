package campuschat_test

import (
	"testing"

	"github.com/sirbrams/campuschat"
)

func TestPagesResetThenNext(t *testing.T) {
	p := campuschat.NewPages()
	p.Reset("c1")
	if got := p.Next("c1"); got != 2 {
		t.Fatalf("first next after reset: expected 2, got %d", got)
	}
	if got := p.Next("c1"); got != 3 {
		t.Fatalf("second next: expected 3, got %d", got)
	}
	if got := p.Current("c1"); got != 3 {
		t.Errorf("current: expected 3, got %d", got)
	}
}

func TestPagesCurrentDefaultsToOne(t *testing.T) {
	p := campuschat.NewPages()
	if got := p.Current("unknown"); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
	if got := p.Next("unknown"); got != 2 {
		t.Errorf("next on unknown: expected 2, got %d", got)
	}
}

func TestPagesIndependentPerConversation(t *testing.T) {
	p := campuschat.NewPages()
	p.Reset("a")
	p.Reset("b")
	p.Next("a")
	p.Next("a")
	if got := p.Current("b"); got != 1 {
		t.Errorf("b should stay on 1, got %d", got)
	}
}

func TestPagesExhausted(t *testing.T) {
	p := campuschat.NewPages()
	p.Reset("c1")
	p.MarkExhausted("c1")
	if !p.Exhausted("c1") {
		t.Fatal("expected exhausted")
	}
	p.Reset("c1")
	if p.Exhausted("c1") {
		t.Error("reset should clear exhausted")
	}

	p.Next("c1")
	p.MarkExhausted("c1")
	p.Forget("c1")
	if p.Exhausted("c1") || p.Current("c1") != 1 {
		t.Error("forget should drop all state")
	}
}
