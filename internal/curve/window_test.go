package curve

import "testing"

func TestWindow_PrefilledFromFirstSample(t *testing.T) {
	w := NewWindow(4, 52)
	if w.Min() != 52 || w.Max() != 52 {
		t.Fatalf("min=%d max=%d want 52", w.Min(), w.Max())
	}
	if w.Depth() != 4 {
		t.Fatalf("depth=%d want 4", w.Depth())
	}
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := NewWindow(4, 40)
	for _, v := range []byte{70, 41, 42, 43} {
		w.Push(v)
	}
	if got := w.Samples(); string(got) != string([]byte{70, 41, 42, 43}) {
		t.Fatalf("samples=%v", got)
	}
	if w.Max() != 70 {
		t.Fatalf("max=%d want 70", w.Max())
	}

	w.Push(44)
	if got := w.Samples(); string(got) != string([]byte{41, 42, 43, 44}) {
		t.Fatalf("samples=%v", got)
	}
	if w.Min() != 41 || w.Max() != 44 {
		t.Fatalf("min=%d max=%d want 41 44", w.Min(), w.Max())
	}
}

func TestWindow_DefaultDepth(t *testing.T) {
	w := NewWindow(0, 1)
	if w.Depth() != DefaultDepth {
		t.Fatalf("depth=%d want %d", w.Depth(), DefaultDepth)
	}
}
