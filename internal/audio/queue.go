package audio

import (
	"context"
	"io"
	"sync"
)

// BlockQueue is a bounded queue of fixed-size blocks between a capture
// callback and the frame pipeline. Push never blocks: when the queue is
// full the oldest block is overwritten and counted as an overrun.
type BlockQueue struct {
	mu       sync.Mutex
	ready    chan struct{}
	blocks   [][]int16
	head     int
	count    int
	overruns uint64
	closed   bool
}

// NewBlockQueue allocates capacity blocks of blockSize samples each.
func NewBlockQueue(capacity, blockSize int) *BlockQueue {
	q := &BlockQueue{
		ready:  make(chan struct{}, 1),
		blocks: make([][]int16, capacity),
	}
	for i := range q.blocks {
		q.blocks[i] = make([]int16, blockSize)
	}
	return q
}

// Push copies block into the queue.
func (q *BlockQueue) Push(block []int16) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if q.count == len(q.blocks) {
		q.head = (q.head + 1) % len(q.blocks)
		q.count--
		q.overruns++
	}
	tail := (q.head + q.count) % len(q.blocks)
	copy(q.blocks[tail], block)
	q.count++
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// ReadBlock implements Source. It waits for a block, the context or Close.
func (q *BlockQueue) ReadBlock(ctx context.Context, dst []int16) (int, error) {
	for {
		q.mu.Lock()
		if q.count > 0 {
			n := copy(dst, q.blocks[q.head])
			q.head = (q.head + 1) % len(q.blocks)
			q.count--
			q.mu.Unlock()
			return n, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return 0, io.EOF
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-q.ready:
		}
	}
}

// Len returns the number of queued blocks.
func (q *BlockQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Overruns returns how many blocks were dropped because the queue was full.
func (q *BlockQueue) Overruns() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.overruns
}

// Close ends the stream once queued blocks are drained.
func (q *BlockQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
