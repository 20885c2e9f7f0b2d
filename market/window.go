package market

// PriceWindow is a bounded, time-ascending series of rates. Once full, each
// push evicts the oldest entry.
type PriceWindow struct {
	buf   []Rate
	start int
	n     int
}

func NewPriceWindow(capacity int) *PriceWindow {
	if capacity <= 0 {
		panic("PriceWindow capacity must be > 0")
	}
	return &PriceWindow{buf: make([]Rate, capacity)}
}

func (w *PriceWindow) Cap() int   { return len(w.buf) }
func (w *PriceWindow) Len() int   { return w.n }
func (w *PriceWindow) Full() bool { return w.n == len(w.buf) }

// Last returns the newest rate.
func (w *PriceWindow) Last() (Rate, bool) {
	if w.n == 0 {
		return Rate{}, false
	}
	return w.at(w.n - 1), true
}

// Push appends r if it is newer than the last entry. It reports whether r
// was stored.
func (w *PriceWindow) Push(r Rate) bool {
	if last, ok := w.Last(); ok && !r.Time.After(last.Time) {
		return false
	}
	if w.n < len(w.buf) {
		w.buf[(w.start+w.n)%len(w.buf)] = r
		w.n++
		return true
	}
	w.buf[w.start] = r
	w.start = (w.start + 1) % len(w.buf)
	return true
}

// PushAll pushes rates in order and returns how many were stored.
func (w *PriceWindow) PushAll(rs []Rate) int {
	stored := 0
	for _, r := range rs {
		if w.Push(r) {
			stored++
		}
	}
	return stored
}

// Rates returns a copy of the window, oldest first.
func (w *PriceWindow) Rates() []Rate {
	out := make([]Rate, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.at(i)
	}
	return out
}

// Mids returns the mid prices, oldest first.
func (w *PriceWindow) Mids() []float64 {
	out := make([]float64, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.at(i).Mid()
	}
	return out
}

func (w *PriceWindow) at(i int) Rate {
	return w.buf[(w.start+i)%len(w.buf)]
}

// PriceCache holds one window per (instrument, resolution). It is owned by
// the control loop and is not safe for concurrent use.
type PriceCache struct {
	capacity int
	windows  map[string]map[Resolution]*PriceWindow
}

func NewPriceCache(capacity int) *PriceCache {
	return &PriceCache{
		capacity: capacity,
		windows:  make(map[string]map[Resolution]*PriceWindow),
	}
}

// Window returns the window for (instrument, res), creating it on first use.
func (c *PriceCache) Window(instrument string, res Resolution) *PriceWindow {
	byRes, ok := c.windows[instrument]
	if !ok {
		byRes = make(map[Resolution]*PriceWindow)
		c.windows[instrument] = byRes
	}
	w, ok := byRes[res]
	if !ok {
		w = NewPriceWindow(c.capacity)
		byRes[res] = w
	}
	return w
}

// History returns every window known for instrument.
func (c *PriceCache) History(instrument string) map[Resolution]*PriceWindow {
	out := make(map[Resolution]*PriceWindow, len(c.windows[instrument]))
	for res, w := range c.windows[instrument] {
		out[res] = w
	}
	return out
}
