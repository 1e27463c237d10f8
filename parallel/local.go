package parallel

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrFinalized is returned by operations on a finalized transport
var ErrFinalized = errors.New("transport finalized")

// ErrAbandoned is returned by a collective that a finalized rank will never
// join
var ErrAbandoned = errors.New("collective abandoned by a finalized rank")

// LocalWorld connects n in-process ranks. Messages match on source, tag
// and destination in posting order; a send completes once a receive has
// taken its bytes.
type LocalWorld struct {
	size  int
	ranks []*localRank

	mu    sync.Mutex
	sends map[mailKey][]*localRequest
	recvs map[mailKey][]*localRequest

	coll collective
}

type mailKey struct {
	src, dst, tag int
}

// NewLocalWorld creates a world of n ranks
func NewLocalWorld(n int) *LocalWorld {
	if n < 1 {
		panic(fmt.Sprintf("world size %d must be positive", n))
	}
	w := &LocalWorld{
		size:  n,
		sends: make(map[mailKey][]*localRequest),
		recvs: make(map[mailKey][]*localRequest),
	}
	w.coll.cond = sync.NewCond(&w.coll.mu)
	w.coll.vals = make([][]float64, n)
	w.ranks = make([]*localRank, n)
	for r := range w.ranks {
		w.ranks[r] = &localRank{world: w, rank: r}
	}
	return w
}

// Size returns the number of ranks
func (w *LocalWorld) Size() int { return w.size }

// Rank returns the transport handle of rank r
func (w *LocalWorld) Rank(r int) Transport { return w.ranks[r] }

type localRequest struct {
	buf  []byte
	done atomic.Bool
	err  error
}

func (r *localRequest) Test() (bool, error) {
	if !r.done.Load() {
		return false, nil
	}
	return true, r.err
}

// deliver copies a matched send into its receive and completes both
func deliver(send, recv *localRequest) {
	if len(send.buf) > len(recv.buf) {
		recv.err = fmt.Errorf("message of %d bytes truncated to %d", len(send.buf), len(recv.buf))
	} else {
		copy(recv.buf, send.buf)
	}
	send.done.Store(true)
	recv.done.Store(true)
}

func (w *LocalWorld) post(key mailKey, req *localRequest, isSend bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	wait, queue := w.recvs, w.sends
	if !isSend {
		wait, queue = w.sends, w.recvs
	}
	if pending := wait[key]; len(pending) > 0 {
		peer := pending[0]
		if len(pending) == 1 {
			delete(wait, key)
		} else {
			wait[key] = pending[1:]
		}
		if isSend {
			deliver(req, peer)
		} else {
			deliver(peer, req)
		}
		return
	}
	queue[key] = append(queue[key], req)
}

type localRank struct {
	world     *LocalWorld
	rank      int
	finalized atomic.Bool
}

func (l *localRank) Rank() int       { return l.rank }
func (l *localRank) Size() int       { return l.world.size }
func (l *localRank) Version() string { return "local 1.0" }

func (l *localRank) Alloc(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative buffer size %d", n)
	}
	return make([]byte, n), nil
}

func (l *localRank) Free([]byte) {}

func (l *localRank) check(peer int) error {
	if l.finalized.Load() {
		return ErrFinalized
	}
	if peer < 0 || peer >= l.world.size {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrRank, peer, l.world.size)
	}
	return nil
}

func (l *localRank) Isend(buf []byte, dest, tag int) (Request, error) {
	if err := l.check(dest); err != nil {
		return nil, err
	}
	req := &localRequest{buf: buf}
	l.world.post(mailKey{src: l.rank, dst: dest, tag: tag}, req, true)
	return req, nil
}

func (l *localRank) Irecv(buf []byte, source, tag int) (Request, error) {
	if err := l.check(source); err != nil {
		return nil, err
	}
	req := &localRequest{buf: buf}
	l.world.post(mailKey{src: source, dst: l.rank, tag: tag}, req, false)
	return req, nil
}

func (l *localRank) AllreduceMinLoc(vals []float64) ([]int, error) {
	if l.finalized.Load() {
		return nil, ErrFinalized
	}
	return l.world.coll.minLoc(l.rank, vals)
}

func (l *localRank) Finalize() error {
	if !l.finalized.Swap(true) {
		l.world.coll.abandon()
	}
	return nil
}

// collective is a generation barrier: the last rank to arrive reduces the
// contributions and wakes the others.
type collective struct {
	mu      sync.Mutex
	cond    *sync.Cond
	gen     int
	arrived int
	vals    [][]float64
	result  []int
	err     error
	broken  bool // a rank finalized; later generations cannot complete
}

// abandon wakes the ranks waiting on an incomplete generation
func (c *collective) abandon() {
	c.mu.Lock()
	c.broken = true
	c.mu.Unlock()
	c.cond.Broadcast()
}

func (c *collective) minLoc(rank int, vals []float64) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken {
		return nil, ErrAbandoned
	}
	gen := c.gen
	c.vals[rank] = vals
	c.arrived++
	if c.arrived == len(c.vals) {
		c.result, c.err = reduceMinLoc(c.vals)
		c.arrived = 0
		c.gen++
		c.cond.Broadcast()
	} else {
		for c.gen == gen && !c.broken {
			c.cond.Wait()
		}
		if c.gen == gen {
			c.arrived--
			c.vals[rank] = nil
			return nil, ErrAbandoned
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return append([]int(nil), c.result...), nil
}

func reduceMinLoc(vals [][]float64) ([]int, error) {
	n := len(vals[0])
	for r, v := range vals {
		if len(v) != n {
			return nil, fmt.Errorf("rank %d contributed %d values, rank 0 %d", r, len(v), n)
		}
	}
	owner := make([]int, n)
	for i := 0; i < n; i++ {
		for r := 1; r < len(vals); r++ {
			if vals[r][i] < vals[owner[i]][i] {
				owner[i] = r
			}
		}
	}
	return owner, nil
}
