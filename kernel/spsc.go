package kernel

import "sync/atomic"

const padValid = 1 << 32

// Queue is a fixed-capacity single-producer/single-consumer byte queue.
// Writers reserve a contiguous region with Grant and publish it with Commit;
// readers borrow the oldest contiguous committed region with Read and free
// it with Release. Neither side ever blocks the other.
//
// When a grant does not fit before the end of the storage, the tail is
// skipped and the grant starts at offset 0. The skipped tail is recorded so
// the consumer can step over it.
type Queue struct {
	buf  []byte
	size uint32
	mask uint32

	// Free-running byte counters. write is stored only by the producer, read
	// only by the consumer.
	write atomic.Uint32
	read  atomic.Uint32

	// padValid|position where the producer skipped to the start, or zero.
	pad atomic.Uint64

	split atomic.Bool
	prod  Producer
	cons  Consumer
}

// NewQueue allocates a queue holding capacity bytes. capacity must be a
// power of two between 2 and 2^30.
func NewQueue(capacity int) (*Queue, error) {
	if capacity < 2 || capacity > 1<<30 || capacity&(capacity-1) != 0 {
		return nil, ErrInvalidSize
	}
	q := &Queue{
		buf:  make([]byte, capacity),
		size: uint32(capacity),
		mask: uint32(capacity - 1),
	}
	q.prod.q = q
	q.cons.q = q
	return q, nil
}

// Split hands out the producer and consumer. It succeeds once.
func (q *Queue) Split() (*Producer, *Consumer, error) {
	if !q.split.CompareAndSwap(false, true) {
		return nil, nil, ErrAlreadySplit
	}
	return &q.prod, &q.cons, nil
}

// Cap returns the storage size in bytes.
func (q *Queue) Cap() int { return int(q.size) }

// Len returns the number of committed bytes not yet released.
func (q *Queue) Len() int {
	r := q.read.Load()
	w := q.write.Load()
	used := w - r
	if pv := q.pad.Load(); pv&padValid != 0 {
		pad := uint32(pv)
		if pad-r < used {
			used -= q.size - pad&q.mask
		}
	}
	return int(used)
}

// Producer is the write side of a Queue.
type Producer struct {
	q       *Queue
	cur     *WriteGrant
	dropped atomic.Uint64
}

// WriteGrant is a reserved region awaiting Commit.
type WriteGrant struct {
	p    *Producer
	buf  []byte
	pos  uint32
	pad  uint32
	done bool
}

// Grant reserves n contiguous bytes. It fails with ErrInsufficientSpace when
// the free space is not contiguous enough, which is counted in Dropped. A
// grant that does not fit before the end of storage needs the skipped tail
// free as well, so it can fail even on an empty queue.
func (p *Producer) Grant(n int) (*WriteGrant, error) {
	if p.cur != nil {
		return nil, ErrGrantInProgress
	}
	q := p.q
	if n <= 0 || n > int(q.size) {
		return nil, ErrInvalidSize
	}
	w := q.write.Load()
	r := q.read.Load()
	free := q.size - (w - r)
	need := uint32(n)
	start := w & q.mask
	var pad uint32
	if start+need > q.size {
		pad = q.size - start
		start = 0
	}
	if pad+need > free {
		p.dropped.Add(1)
		return nil, ErrInsufficientSpace
	}
	g := &WriteGrant{p: p, buf: q.buf[start : start+need : start+need], pos: w, pad: pad}
	p.cur = g
	return g, nil
}

// Write copies b into the queue as one record.
func (p *Producer) Write(b []byte) error {
	g, err := p.Grant(len(b))
	if err != nil {
		return err
	}
	copy(g.Bytes(), b)
	return g.Commit(len(b))
}

// Free returns the number of bytes not held by the consumer side. A grant of
// that size may still fail if the space is split by the end of storage.
func (p *Producer) Free() int {
	q := p.q
	return int(q.size - (q.write.Load() - q.read.Load()))
}

// Contiguous returns the largest n for which Grant(n) would succeed now.
func (p *Producer) Contiguous() int {
	q := p.q
	w := q.write.Load()
	free := q.size - (w - q.read.Load())
	tail := q.size - w&q.mask
	if free <= tail {
		return int(free)
	}
	return int(max(tail, free-tail))
}

// Dropped returns how many grants failed for lack of space.
func (p *Producer) Dropped() uint64 { return p.dropped.Load() }

// Bytes returns the writable region.
func (g *WriteGrant) Bytes() []byte { return g.buf }

// Commit publishes the first k bytes of the grant; the rest is returned to
// the free space. k is clamped to the grant size.
func (g *WriteGrant) Commit(k int) error {
	if g.done {
		return ErrGrantReleased
	}
	g.done = true
	g.p.cur = nil
	k = clamp(k, len(g.buf))
	if k == 0 {
		return nil
	}
	q := g.p.q
	w := g.pos
	if g.pad > 0 {
		q.pad.Store(padValid | uint64(w))
		w += g.pad
	}
	q.write.Store(w + uint32(k))
	return nil
}

// Consumer is the read side of a Queue.
type Consumer struct {
	q   *Queue
	cur *ReadGrant
}

// ReadGrant is a borrowed committed region awaiting Release.
type ReadGrant struct {
	c    *Consumer
	buf  []byte
	pos  uint32
	done bool
}

// Read borrows the oldest contiguous run of committed bytes.
func (c *Consumer) Read() (*ReadGrant, error) {
	if c.cur != nil {
		return nil, ErrGrantInProgress
	}
	q := c.q
	for {
		r := q.read.Load()
		avail := q.write.Load() - r
		if avail == 0 {
			return nil, ErrEmpty
		}
		idx := r & q.mask
		n := q.size - idx
		if pv := q.pad.Load(); pv&padValid != 0 {
			if d := uint32(pv) - r; d < avail {
				if d == 0 {
					// Skip the unused tail and continue from offset 0.
					q.pad.CompareAndSwap(pv, 0)
					q.read.Store(r + n)
					continue
				}
				n = d
			}
		}
		if n > avail {
			n = avail
		}
		g := &ReadGrant{c: c, buf: q.buf[idx : idx+n : idx+n], pos: r}
		c.cur = g
		return g, nil
	}
}

// ReadInto copies at most len(b) bytes from one contiguous region and
// releases them.
func (c *Consumer) ReadInto(b []byte) (int, error) {
	g, err := c.Read()
	if err != nil {
		return 0, err
	}
	n := copy(b, g.Bytes())
	return n, g.Release(n)
}

// Bytes returns the readable region.
func (g *ReadGrant) Bytes() []byte { return g.buf }

// Release frees the first k bytes of the region. Unreleased bytes are
// returned by the next Read. k is clamped to the region size.
func (g *ReadGrant) Release(k int) error {
	if g.done {
		return ErrGrantReleased
	}
	g.done = true
	g.c.cur = nil
	k = clamp(k, len(g.buf))
	g.c.q.read.Store(g.pos + uint32(k))
	return nil
}

func clamp(k, n int) int {
	if k < 0 {
		return 0
	}
	if k > n {
		return n
	}
	return k
}
