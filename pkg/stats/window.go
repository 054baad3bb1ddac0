package stats

// Sample is one paired (y, x) observation.
type Sample struct {
	Y float64
	X float64
}

// RollingWindow is a fixed-capacity FIFO of samples backed by a ring.
// Push never allocates once the window is constructed.
type RollingWindow struct {
	buf   []Sample
	head  int // index of the oldest sample
	count int
}

// NewRollingWindow creates an empty window. Capacity is validated by the
// caller; values below 1 are treated as 1.
func NewRollingWindow(capacity int) *RollingWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &RollingWindow{buf: make([]Sample, capacity)}
}

// Seed replaces the contents with the last Cap() samples (all of them when
// shorter, leaving the window warming up).
func (w *RollingWindow) Seed(samples []Sample) {
	if len(samples) > len(w.buf) {
		samples = samples[len(samples)-len(w.buf):]
	}
	w.head = 0
	w.count = copy(w.buf, samples)
}

// Push appends a sample, evicting the oldest one when full.
func (w *RollingWindow) Push(s Sample) {
	if w.count < len(w.buf) {
		w.buf[(w.head+w.count)%len(w.buf)] = s
		w.count++
		return
	}
	w.buf[w.head] = s
	w.head = (w.head + 1) % len(w.buf)
}

// IsFull reports Len() == Cap().
func (w *RollingWindow) IsFull() bool {
	return w.count == len(w.buf)
}

// Len returns the number of samples held.
func (w *RollingWindow) Len() int {
	return w.count
}

// Cap returns the window size N.
func (w *RollingWindow) Cap() int {
	return len(w.buf)
}

// Samples returns the contents oldest first.
func (w *RollingWindow) Samples() []Sample {
	out := make([]Sample, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

// Columns fills xs and ys (oldest first) reusing their backing arrays.
func (w *RollingWindow) Columns(xs, ys []float64) ([]float64, []float64) {
	xs, ys = xs[:0], ys[:0]
	for i := 0; i < w.count; i++ {
		s := w.buf[(w.head+i)%len(w.buf)]
		xs = append(xs, s.X)
		ys = append(ys, s.Y)
	}
	return xs, ys
}

// Reset empties the window keeping its capacity.
func (w *RollingWindow) Reset() {
	w.head = 0
	w.count = 0
}
