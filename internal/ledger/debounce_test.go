package ledger

import (
	"testing"
	"time"
)

func TestDebouncerSupersedes(t *testing.T) {
	d := NewDebouncer()
	d.SetDelay(DebounceStock, 500*time.Millisecond)

	a := d.Schedule(DebounceStock, "W1")
	b := d.Schedule(DebounceStock, "W1")
	other := d.Schedule(DebounceBatch, "row")

	if a.Delay != 500*time.Millisecond {
		t.Errorf("delay = %v, want 500ms", a.Delay)
	}
	if other.Delay != 0 {
		t.Errorf("unset prefix delay = %v, want 0", other.Delay)
	}
	if d.Live(a) {
		t.Errorf("superseded ticket still live")
	}
	if !d.Live(b) || !d.Live(other) {
		t.Errorf("latest tickets should be live")
	}

	d.Done(b)
	if d.Live(b) {
		t.Errorf("ticket live after Done")
	}
	d.Done(a)
	if !d.Live(other) {
		t.Errorf("Done on a stale ticket affected another key")
	}
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer()
	a := d.Schedule(DebounceBatch, "r1")
	b := d.Schedule(DebounceBatch, "r2")

	d.Cancel(DebounceBatch, "r1")
	if d.Live(a) || !d.Live(b) {
		t.Errorf("Cancel should only drop r1")
	}
	d.CancelAll()
	if d.Live(b) {
		t.Errorf("CancelAll left a live ticket")
	}
}
