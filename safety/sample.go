package safety

// Number of driver torque samples the measurement window keeps
const sampleWindow = 6

// sample keeps the newest values of a measurement and their extremes.
type sample struct {
	values [sampleWindow]int
	min    int
	max    int
}

func (s *sample) update(v int) {
	for i := sampleWindow - 1; i > 0; i-- {
		s.values[i] = s.values[i-1]
	}
	s.values[0] = v

	s.min = s.values[0]
	s.max = s.values[0]
	for _, x := range s.values[1:] {
		if x < s.min {
			s.min = x
		}
		if x > s.max {
			s.max = x
		}
	}
}

func (s *sample) reset() {
	*s = sample{}
}
