package gwm

// Edge is the transition reported by EdgeDetector for one sample
type Edge int

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeChanged
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeChanged:
		return "changed"
	default:
		return "none"
	}
}

// EdgeDetector turns a sampled level into transitions. A new level must be
// seen for debounce consecutive samples before it replaces the stable one.
type EdgeDetector struct {
	debounce int
	stable   float64
	pending  float64
	count    int
}

func NewEdgeDetector(debounce int) *EdgeDetector {
	if debounce < 1 {
		debounce = 1
	}
	return &EdgeDetector{debounce: debounce}
}

// Update feeds one sample. Zero to nonzero is EdgeRising, nonzero to zero is
// EdgeFalling and a change between two nonzero values is EdgeChanged.
func (d *EdgeDetector) Update(raw float64) Edge {
	if raw == d.stable {
		d.pending = raw
		d.count = 0
		return EdgeNone
	}

	if raw != d.pending {
		d.pending = raw
		d.count = 0
	}
	d.count++
	if d.count < d.debounce {
		return EdgeNone
	}

	prev := d.stable
	d.stable = raw
	d.count = 0

	switch {
	case prev == 0:
		return EdgeRising
	case raw == 0:
		return EdgeFalling
	default:
		return EdgeChanged
	}
}

// Level returns the last accepted level.
func (d *EdgeDetector) Level() float64 {
	return d.stable
}

func (d *EdgeDetector) Reset() {
	d.stable = 0
	d.pending = 0
	d.count = 0
}
