package blink

// SmoothingBuffer is a fixed-capacity FIFO of recent scores with an O(1)
// running average. Pushing beyond capacity evicts the oldest score.
type SmoothingBuffer struct {
	values []float64
	head   int // next write position
	size   int
	sum    float64
}

// NewSmoothingBuffer creates a buffer holding at most window scores.
// A window below 1 is treated as 1.
func NewSmoothingBuffer(window int) *SmoothingBuffer {
	if window < 1 {
		window = 1
	}
	return &SmoothingBuffer{values: make([]float64, window)}
}

// Push appends a score, evicting the oldest one when full.
func (b *SmoothingBuffer) Push(v float64) {
	if b.size == len(b.values) {
		b.sum -= b.values[b.head]
	} else {
		b.size++
	}
	b.values[b.head] = v
	b.sum += v

	b.head++
	if b.head == len(b.values) {
		b.head = 0
		// Re-derive the sum once per lap so rounding error cannot accumulate
		// over a long session.
		b.resum()
	}
}

func (b *SmoothingBuffer) resum() {
	sum := 0.0
	for i := 0; i < b.size; i++ {
		sum += b.values[i]
	}
	b.sum = sum
}

// Average returns the mean of the buffered scores, or 0 when empty.
func (b *SmoothingBuffer) Average() float64 {
	if b.size == 0 {
		return 0
	}
	return b.sum / float64(b.size)
}

// Len returns the number of buffered scores.
func (b *SmoothingBuffer) Len() int {
	return b.size
}

// Cap returns the window size.
func (b *SmoothingBuffer) Cap() int {
	return len(b.values)
}

// Reset empties the buffer.
func (b *SmoothingBuffer) Reset() {
	for i := range b.values {
		b.values[i] = 0
	}
	b.head = 0
	b.size = 0
	b.sum = 0
}
