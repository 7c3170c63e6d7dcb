package curve

// DefaultDepth is how many samples the governor smooths over.
const DefaultDepth = 4

// Window is a fixed-depth ring of recent temperature samples.
//
// Not safe for concurrent use.
type Window struct {
	buf  []byte
	next int
}

// NewWindow returns a window of the given depth filled with first, so that
// min and max are defined from the first poll on.
func NewWindow(depth int, first byte) *Window {
	if depth <= 0 {
		depth = DefaultDepth
	}
	w := &Window{buf: make([]byte, depth)}
	for i := range w.buf {
		w.buf[i] = first
	}
	return w
}

// Push stores v, evicting the oldest sample.
func (w *Window) Push(v byte) {
	w.buf[w.next] = v
	w.next = (w.next + 1) % len(w.buf)
}

func (w *Window) Min() byte {
	m := w.buf[0]
	for _, v := range w.buf[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func (w *Window) Max() byte {
	m := w.buf[0]
	for _, v := range w.buf[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// Samples returns the window contents, oldest first.
func (w *Window) Samples() []byte {
	out := make([]byte, 0, len(w.buf))
	out = append(out, w.buf[w.next:]...)
	out = append(out, w.buf[:w.next]...)
	return out
}

func (w *Window) Depth() int { return len(w.buf) }
