package identity

import "testing"

func TestPin_FirstCallRecords(t *testing.T) {
	p := New()
	if got := p.Pin("S1"); got != "S1" {
		t.Fatalf("expected S1, got %q", got)
	}
	if got := p.Current(); got != "S1" {
		t.Errorf("expected current S1, got %q", got)
	}
}

func TestPin_LaterCandidateIgnored(t *testing.T) {
	p := New()
	p.Pin("S1")

	if got := p.Pin("S2"); got != "S1" {
		t.Errorf("expected pinned S1, got %q", got)
	}
	if got := p.Current(); got != "S1" {
		t.Errorf("expected current S1 after mismatch, got %q", got)
	}
}

func TestPin_EmptyNotPinned(t *testing.T) {
	p := New()
	if got := p.Pin(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if got := p.Pin("S1"); got != "S1" {
		t.Errorf("expected S1 to pin after empty candidate, got %q", got)
	}
}

func TestOverride_ReplacesPinned(t *testing.T) {
	p := New()
	p.Pin("S1")

	prev := p.Override("S9", "webrtc-offer")
	if prev != "S1" {
		t.Errorf("expected previous S1, got %q", prev)
	}
	if got := p.Current(); got != "S9" {
		t.Errorf("expected S9 after override, got %q", got)
	}
	// Later route churn still cannot move it.
	if got := p.Pin("S1"); got != "S9" {
		t.Errorf("expected S9 to stay pinned, got %q", got)
	}
}

func TestOverride_EmptyIsNoop(t *testing.T) {
	p := New()
	p.Pin("S1")
	p.Override("", "webrtc-ice")
	if got := p.Current(); got != "S1" {
		t.Errorf("expected S1, got %q", got)
	}
}
