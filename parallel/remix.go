package parallel

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/notargets/aderseis/utils"
	"github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"
)

// ErrNotDrained is returned when a message is posted again before it was
// completed by Comm.
var ErrNotDrained = errors.New("message still in flight")

// ErrNotInitialized is returned by operations that need Init first
var ErrNotInitialized = errors.New("remix not initialized")

// DefaultIterComm is the default number of progression sweeps of Comm
const DefaultIterComm = 100

// State is the progress of one message
type State int32

const (
	Idle State = iota
	Posted
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Posted:
		return "posted"
	case Completed:
		return "completed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// InitConfig holds the mesh dimensions and channels passed to Init
type InitConfig struct {
	NTgs   uint16 // number of time groups
	NElFas uint16 // faces per element
	NEls   int    // local elements
	NByFa  int    // bytes per communicating face
	Comm   CommStruct
}

// Remix drives the non-blocking exchanges of all channels of a rank.
//
// Progression is cooperative: after BeginSends/BeginRecvs the caller polls
// Comm until FinSends/FinRecvs report completion. Comm is the only method
// completing messages. Tags and buffers are fixed by Init.
type Remix struct {
	tr        Transport
	nIterComm int
	abort     func(error)
	logger    *logrus.Logger

	ready    bool
	cfg      InitConfig
	channels []Channel
	sendBufs [][]byte
	recvBufs [][]byte

	sendReqs  []Request
	recvReqs  []Request
	sendState []atomic.Int32
	recvState []atomic.Int32
}

// RemixOption configures a Remix
type RemixOption func(*Remix)

// WithIterComm sets the number of progression sweeps per Comm call
func WithIterComm(n int) RemixOption {
	return func(r *Remix) { r.nIterComm = n }
}

// WithAbort replaces the handler of fatal transport errors
func WithAbort(fn func(error)) RemixOption {
	return func(r *Remix) { r.abort = fn }
}

// WithRemixLogger sets the logger
func WithRemixLogger(l *logrus.Logger) RemixOption {
	return func(r *Remix) { r.logger = l }
}

// NewRemix creates an engine on top of tr
func NewRemix(tr Transport, opts ...RemixOption) *Remix {
	if tr == nil {
		panic("transport cannot be nil")
	}
	r := &Remix{tr: tr, nIterComm: DefaultIterComm}
	for _, opt := range opts {
		opt(r)
	}
	if r.nIterComm < 1 {
		r.nIterComm = 1
	}
	if r.logger == nil {
		r.logger = utils.Discard()
	}
	if r.abort == nil {
		r.abort = r.fatal
	}
	return r
}

// fatal logs err and exits through atexit so that registered finalizers run
func (r *Remix) fatal(err error) {
	r.logger.WithField("rank", r.tr.Rank()).WithError(err).Error("communication failed")
	atexit.Fatalf("rank %d: %v", r.tr.Rank(), err)
}

// Init validates the channels, assigns tags and allocates the message
// buffers. A second call replaces the previous channels and buffers.
func (r *Remix) Init(cfg InitConfig) error {
	if cfg.NTgs == 0 {
		return fmt.Errorf("number of time groups must be positive")
	}
	if cfg.NElFas == 0 || cfg.NByFa < 0 || cfg.NEls < 0 {
		return fmt.Errorf("invalid dimensions: nElFas=%d, nEls=%d, nByFa=%d", cfg.NElFas, cfg.NEls, cfg.NByFa)
	}
	channels, err := buildChannels(cfg, r.tr.Rank(), r.tr.Size())
	if err != nil {
		return err
	}

	r.release()
	r.ready = false
	r.cfg = cfg
	r.channels = channels
	n := len(channels)
	r.sendBufs = make([][]byte, n)
	r.recvBufs = make([][]byte, n)
	for ch := range channels {
		size := len(channels[ch].Send.Faces) * cfg.NByFa
		if r.sendBufs[ch], err = r.tr.Alloc(size); err != nil {
			r.release()
			return fmt.Errorf("allocating send buffer of channel %d: %w", ch, err)
		}
		size = len(channels[ch].Recv.Faces) * cfg.NByFa
		if r.recvBufs[ch], err = r.tr.Alloc(size); err != nil {
			r.release()
			return fmt.Errorf("allocating receive buffer of channel %d: %w", ch, err)
		}
	}
	r.sendReqs = make([]Request, n)
	r.recvReqs = make([]Request, n)
	r.sendState = make([]atomic.Int32, n)
	r.recvState = make([]atomic.Int32, n)
	r.ready = true

	r.logger.WithFields(logrus.Fields{
		"rank":     r.tr.Rank(),
		"channels": n,
		"tgs":      cfg.NTgs,
		"faces":    cfg.Comm.NFaces(),
	}).Debug("remix initialized")
	return nil
}

func buildChannels(cfg InitConfig, rank, size int) ([]Channel, error) {
	type pairTag struct{ rank, tag int }
	sendTags := make(map[pairTag]int)
	channels := make([]Channel, len(cfg.Comm.Channels))

	for i, spec := range cfg.Comm.Channels {
		switch {
		case spec.Rank < 0 || spec.Rank >= size:
			return nil, fmt.Errorf("channel %d: %w: %d", i, ErrRank, spec.Rank)
		case spec.Rank == rank:
			return nil, fmt.Errorf("channel %d connects rank %d with itself", i, rank)
		case spec.LocalTg >= cfg.NTgs || spec.RemoteTg >= cfg.NTgs:
			return nil, fmt.Errorf("channel %d: time groups (%d,%d) out of range [0,%d)",
				i, spec.LocalTg, spec.RemoteTg, cfg.NTgs)
		case len(spec.SendFaces) != len(spec.SendElements):
			return nil, fmt.Errorf("channel %d: %d send faces but %d send elements",
				i, len(spec.SendFaces), len(spec.SendElements))
		case len(spec.RecvFaces) != len(spec.RecvElements):
			return nil, fmt.Errorf("channel %d: %d receive faces but %d receive elements",
				i, len(spec.RecvFaces), len(spec.RecvElements))
		}
		if err := checkFaces(spec.SendFaces, spec.SendElements, cfg); err != nil {
			return nil, fmt.Errorf("channel %d send: %w", i, err)
		}
		if err := checkFaces(spec.RecvFaces, spec.RecvElements, cfg); err != nil {
			return nil, fmt.Errorf("channel %d receive: %w", i, err)
		}

		// the receive tag is determined by the send tag, uniqueness of one
		// implies uniqueness of the other
		tag := SendTag(cfg.NTgs, spec.LocalTg, spec.RemoteTg)
		key := pairTag{spec.Rank, tag}
		if prev, ok := sendTags[key]; ok {
			return nil, fmt.Errorf("channels %d and %d both connect time groups (%d,%d) with rank %d",
				prev, i, spec.LocalTg, spec.RemoteTg, spec.Rank)
		}
		sendTags[key] = i

		lt := spec.LocalTg < spec.RemoteTg
		channels[i] = Channel{
			Rank: spec.Rank,
			Send: Message{
				Tg: spec.LocalTg, Lt: lt, Tag: tag,
				Faces: spec.SendFaces, Elements: spec.SendElements,
			},
			Recv: Message{
				Tg: spec.LocalTg, Lt: lt, Tag: RecvTag(cfg.NTgs, spec.LocalTg, spec.RemoteTg),
				Faces: spec.RecvFaces, Elements: spec.RecvElements,
			},
		}
	}
	return channels, nil
}

func checkFaces(faces []uint16, elements []int, cfg InitConfig) error {
	for i := range faces {
		if faces[i] >= cfg.NElFas {
			return fmt.Errorf("face %d: local face %d >= %d", i, faces[i], cfg.NElFas)
		}
		if elements[i] < 0 || elements[i] >= cfg.NEls {
			return fmt.Errorf("face %d: element %d not in [0,%d)", i, elements[i], cfg.NEls)
		}
	}
	return nil
}

func (r *Remix) release() {
	for _, b := range r.sendBufs {
		if b != nil {
			r.tr.Free(b)
		}
	}
	for _, b := range r.recvBufs {
		if b != nil {
			r.tr.Free(b)
		}
	}
	r.sendBufs, r.recvBufs = nil, nil
}

// VersionString returns the transport's highest supported version
func (r *Remix) VersionString() string { return r.tr.Version() }

// Rank returns the rank of the underlying transport
func (r *Remix) Rank() int { return r.tr.Rank() }

// Channels returns the channels built by Init
func (r *Remix) Channels() []Channel { return r.channels }

// SendBuffers returns the per-channel send buffers; callers fill them
// before BeginSends.
func (r *Remix) SendBuffers() [][]byte { return r.sendBufs }

// RecvBuffers returns the per-channel receive buffers; they are valid once
// FinRecvs reports completion.
func (r *Remix) RecvBuffers() [][]byte { return r.recvBufs }

// SendState returns the state of the send message of channel ch
func (r *Remix) SendState(ch int) State { return State(r.sendState[ch].Load()) }

// RecvState returns the state of the receive message of channel ch
func (r *Remix) RecvState(ch int) State { return State(r.recvState[ch].Load()) }

// inFlight returns the first matching channel whose message is still
// Posted, or -1. Begins check all channels before posting any.
func (r *Remix) inFlight(states []atomic.Int32, lt bool, tg uint16, match func(*Channel, bool, uint16) bool) int {
	for ch := range r.channels {
		if match(&r.channels[ch], lt, tg) && State(states[ch].Load()) == Posted {
			return ch
		}
	}
	return -1
}

// BeginSends posts the sends of all channels matching lt and tg
func (r *Remix) BeginSends(lt bool, tg uint16) error {
	if !r.ready {
		return ErrNotInitialized
	}
	if ch := r.inFlight(r.sendState, lt, tg, CheckSendTgLt); ch >= 0 {
		return fmt.Errorf("send of channel %d: %w", ch, ErrNotDrained)
	}
	for ch := range r.channels {
		c := &r.channels[ch]
		if !CheckSendTgLt(c, lt, tg) {
			continue
		}
		req, err := r.tr.Isend(r.sendBufs[ch], c.Rank, c.Send.Tag)
		if err != nil {
			r.abort(fmt.Errorf("isend channel %d to rank %d: %w", ch, c.Rank, err))
			return err
		}
		r.sendReqs[ch] = req
		r.sendState[ch].Store(int32(Posted))
	}
	return nil
}

// BeginRecvs posts the receives of all channels matching lt and tg
func (r *Remix) BeginRecvs(lt bool, tg uint16) error {
	if !r.ready {
		return ErrNotInitialized
	}
	if ch := r.inFlight(r.recvState, lt, tg, CheckRecvTgLt); ch >= 0 {
		return fmt.Errorf("receive of channel %d: %w", ch, ErrNotDrained)
	}
	for ch := range r.channels {
		c := &r.channels[ch]
		if !CheckRecvTgLt(c, lt, tg) {
			continue
		}
		req, err := r.tr.Irecv(r.recvBufs[ch], c.Rank, c.Recv.Tag)
		if err != nil {
			r.abort(fmt.Errorf("irecv channel %d from rank %d: %w", ch, c.Rank, err))
			return err
		}
		r.recvReqs[ch] = req
		r.recvState[ch].Store(int32(Posted))
	}
	return nil
}

// Comm progresses the outstanding messages with at most nIterComm sweeps
// over all channels. It returns early once nothing is in flight.
func (r *Remix) Comm() {
	for it := 0; it < r.nIterComm; it++ {
		pending := progress(r.sendReqs, r.sendState, r.abort, "send")
		pending += progress(r.recvReqs, r.recvState, r.abort, "receive")
		if pending == 0 {
			return
		}
	}
}

// progress tests every posted request once and returns how many remain
func progress(reqs []Request, states []atomic.Int32, abort func(error), dir string) int {
	pending := 0
	for ch := range reqs {
		if State(states[ch].Load()) != Posted {
			continue
		}
		done, err := reqs[ch].Test()
		if err != nil {
			reqs[ch] = nil
			states[ch].Store(int32(Idle))
			abort(fmt.Errorf("%s of channel %d: %w", dir, ch, err))
			continue
		}
		if done {
			reqs[ch] = nil
			states[ch].Store(int32(Completed))
		} else {
			pending++
		}
	}
	return pending
}

// FinSends reports whether every send matching lt and tg is completed
func (r *Remix) FinSends(lt bool, tg uint16) bool {
	for ch := range r.channels {
		if CheckSendTgLt(&r.channels[ch], lt, tg) && State(r.sendState[ch].Load()) != Completed {
			return false
		}
	}
	return true
}

// FinRecvs reports whether every receive matching lt and tg is completed
func (r *Remix) FinRecvs(lt bool, tg uint16) bool {
	for ch := range r.channels {
		if CheckRecvTgLt(&r.channels[ch], lt, tg) && State(r.recvState[ch].Load()) != Completed {
			return false
		}
	}
	return true
}

// SyncData exchanges send with all neighbours and fills recv, blocking
// until every message arrived or ctx is done.
//
// Both slices hold, channel after channel, nByCh channel bytes followed by
// nByFa bytes for each face of the channel. The exchange uses its own tags
// and buffers and does not touch the time group messages. A cancelled
// exchange leaves its messages in flight; the engine must not sync again.
func (r *Remix) SyncData(ctx context.Context, nByCh, nByFa int, send, recv []byte) error {
	if !r.ready {
		return ErrNotInitialized
	}
	if nByCh < 0 || nByFa < 0 {
		return fmt.Errorf("invalid sizes: nByCh=%d, nByFa=%d", nByCh, nByFa)
	}
	sendLen, recvLen := 0, 0
	for _, c := range r.channels {
		sendLen += nByCh + len(c.Send.Faces)*nByFa
		recvLen += nByCh + len(c.Recv.Faces)*nByFa
	}
	if len(send) < sendLen || len(recv) < recvLen {
		return fmt.Errorf("sync needs %d send and %d receive bytes, have %d and %d",
			sendLen, recvLen, len(send), len(recv))
	}

	n := len(r.channels)
	base := int(r.cfg.NTgs) * int(r.cfg.NTgs)
	sBufs := make([][]byte, n)
	rBufs := make([][]byte, n)
	reqs := make([]Request, 0, 2*n)
	defer func() {
		if len(reqs) > 0 {
			// still referenced by the transport
			return
		}
		for ch := 0; ch < n; ch++ {
			if sBufs[ch] != nil {
				r.tr.Free(sBufs[ch])
			}
			if rBufs[ch] != nil {
				r.tr.Free(rBufs[ch])
			}
		}
	}()

	var err error
	var rq, sq Request
	sOff, rOff := 0, 0
	for ch, c := range r.channels {
		sLen := nByCh + len(c.Send.Faces)*nByFa
		rLen := nByCh + len(c.Recv.Faces)*nByFa
		if sBufs[ch], err = r.tr.Alloc(sLen); err != nil {
			return fmt.Errorf("allocating sync buffer: %w", err)
		}
		if rBufs[ch], err = r.tr.Alloc(rLen); err != nil {
			return fmt.Errorf("allocating sync buffer: %w", err)
		}
		copy(sBufs[ch], send[sOff:sOff+sLen])
		sOff += sLen

		if rq, err = r.tr.Irecv(rBufs[ch], c.Rank, base+c.Recv.Tag); err != nil {
			r.abort(fmt.Errorf("sync irecv channel %d: %w", ch, err))
			return err
		}
		if sq, err = r.tr.Isend(sBufs[ch], c.Rank, base+c.Send.Tag); err != nil {
			r.abort(fmt.Errorf("sync isend channel %d: %w", ch, err))
			return err
		}
		reqs = append(reqs, rq, sq)
	}

	for len(reqs) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		open := reqs[:0]
		for _, q := range reqs {
			done, err := q.Test()
			if err != nil {
				r.abort(fmt.Errorf("sync: %w", err))
				return err
			}
			if !done {
				open = append(open, q)
			}
		}
		reqs = open
		if len(reqs) > 0 {
			runtime.Gosched()
		}
	}

	for ch, c := range r.channels {
		rLen := nByCh + len(c.Recv.Faces)*nByFa
		copy(recv[rOff:rOff+rLen], rBufs[ch])
		rOff += rLen
	}
	return nil
}

// Min marks, for every value, whether this rank holds the global minimum.
// Exactly one rank is marked per value; ties go to the lowest rank.
func (r *Remix) Min(vals []float64) []bool {
	owners, err := r.tr.AllreduceMinLoc(vals)
	if err != nil {
		r.abort(fmt.Errorf("min reduction: %w", err))
		return nil
	}
	rank := r.tr.Rank()
	out := make([]bool, len(vals))
	for i, o := range owners {
		out[i] = o == rank
	}
	return out
}

// Fin releases the buffers and finalizes the transport
func (r *Remix) Fin() error {
	r.release()
	r.ready = false
	r.channels = nil
	return r.tr.Finalize()
}
