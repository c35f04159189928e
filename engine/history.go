package engine

import (
	"sync"

	"github.com/ftahirops/nbstat/resource"
)

// maxMissedTicks is how many consecutive ticks a series may go unobserved
// before it is dropped.
const maxMissedTicks = 2

// window is a ring buffer of the most recent samples.
type window struct {
	buf  []float64
	head int
	size int
}

func newWindow(capacity int) *window {
	return &window{buf: make([]float64, max(capacity, 1))}
}

func (w *window) push(v float64) {
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
	if w.size < len(w.buf) {
		w.size++
	}
}

func (w *window) mean() float64 {
	var sum float64
	for i := 0; i < w.size; i++ {
		sum += w.buf[(w.head-1-i+len(w.buf))%len(w.buf)]
	}
	return sum / float64(w.size)
}

type seriesKey struct {
	identity string
	res      resource.Resource
}

type series struct {
	win  *window
	seen uint64
}

// History keeps a moving-average window per row identity and resource.
// Identities are pid plus start time for processes and the index for
// devices.
type History struct {
	mu       sync.Mutex
	capacity int
	tick     uint64
	series   map[seriesKey]*series
}

// NewHistory creates a history whose windows hold capacity samples.
func NewHistory(capacity int) *History {
	return &History{capacity: max(capacity, 1), series: make(map[seriesKey]*series)}
}

// Observe records v for the current tick and returns the average, which is
// only defined once two samples exist.
func (h *History) Observe(identity string, res resource.Resource, v float64) (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := seriesKey{identity, res}
	s, ok := h.series[k]
	if !ok {
		s = &series{win: newWindow(h.capacity)}
		h.series[k] = s
	}
	s.win.push(v)
	s.seen = h.tick
	if s.win.size < 2 {
		return 0, false
	}
	return s.win.mean(), true
}

// Advance closes the current tick and drops series that were not observed
// during the last maxMissedTicks ticks.
func (h *History) Advance() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tick++
	for k, s := range h.series {
		if h.tick-s.seen > maxMissedTicks {
			delete(h.series, k)
		}
	}
}

// Len returns the number of live series.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.series)
}

