package spectrometer

// DarkBufferSize is the number of dark-pixel readings averaged into the baseline
const DarkBufferSize = 40

// darkBuffer is a fixed-capacity ring of the most recent dark-pixel readings
type darkBuffer struct {
	values [DarkBufferSize]float64
	next   int
	full   bool
}

func (b *darkBuffer) push(v float64) {
	b.values[b.next] = v
	b.next++
	if b.next == DarkBufferSize {
		b.next = 0
		b.full = true
	}
}

// len returns the number of valid entries
func (b *darkBuffer) len() int {
	if b.full {
		return DarkBufferSize
	}
	return b.next
}

// mean returns the arithmetic mean of the valid entries, 0 when empty
func (b *darkBuffer) mean() float64 {
	n := b.len()
	if n == 0 {
		return 0
	}

	var sum float64
	for _, v := range b.values[:n] {
		sum += v
	}
	return sum / float64(n)
}

func (b *darkBuffer) reset() {
	*b = darkBuffer{}
}
