package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// FrameTimingBuffer is a ring buffer for storing frame durations.
type FrameTimingBuffer struct {
	mu       sync.RWMutex
	samples  []time.Duration
	index    int
	capacity int
	count    int
}

// NewFrameTimingBuffer creates a new FrameTimingBuffer with the given capacity.
func NewFrameTimingBuffer(capacity int) *FrameTimingBuffer {
	if capacity <= 0 {
		capacity = 60
	}
	return &FrameTimingBuffer{
		samples:  make([]time.Duration, capacity),
		capacity: capacity,
	}
}

// Add records a frame duration to the buffer.
func (b *FrameTimingBuffer) Add(duration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples[b.index] = duration
	b.index = (b.index + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// Samples returns a copy of the frame samples in chronological order.
func (b *FrameTimingBuffer) Samples() []time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 {
		return nil
	}

	result := make([]time.Duration, b.count)
	if b.count < b.capacity {
		copy(result, b.samples[:b.count])
	} else {
		// Buffer full - oldest sample is at b.index
		copy(result, b.samples[b.index:])
		copy(result[b.capacity-b.index:], b.samples[:b.index])
	}
	return result
}

// Count returns the number of samples currently in the buffer.
func (b *FrameTimingBuffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Stats summarizes the buffered samples.
func (b *FrameTimingBuffer) Stats() PerfStats {
	samples := b.Samples()
	s := PerfStats{Frames: len(samples)}
	if len(samples) == 0 {
		return s
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	s.Total = total
	s.Mean = total / time.Duration(len(sorted))
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.P95 = sorted[(len(sorted)*95-1)/100]
	return s
}

// PerfStats summarizes frame durations.
type PerfStats struct {
	Frames int
	Total  time.Duration
	Mean   time.Duration
	Min    time.Duration
	Max    time.Duration
	P95    time.Duration
}

func (s PerfStats) String() string {
	return fmt.Sprintf("%d frames, mean %s, min %s, max %s, p95 %s", s.Frames, s.Mean, s.Min, s.Max, s.P95)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
