// Package exchange runs the local time stepping face exchange of a
// partitioned mesh: every rank advances its time groups with rate 2 and
// ships stamped face data through a Remix engine.
package exchange

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/notargets/aderseis/element"
	"github.com/notargets/aderseis/mesh"
	"github.com/notargets/aderseis/parallel"
	"github.com/notargets/aderseis/utils"
	"github.com/notargets/aderseis/velocity"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// MinFaceBytes is the size of the face stamp (element, face, step)
const MinFaceBytes = 8

// Problem is the partitioned mesh shared by all ranks
type Problem struct {
	Conn     *parallel.Connector
	Dts      []float64 // stable time step of every element
	NByFa    int       // bytes exchanged per face
	Cycles   int       // coarsest time steps to run
	IterComm int
}

// Report summarises the run of one rank
type Report struct {
	Rank        int
	Elements    int
	Channels    int
	Steps       int // fine steps
	Messages    int // received channel messages
	Bytes       int
	MinDtLeader bool // this rank owns the smallest time step
	Elapsed     time.Duration
}

// NewProblem bins the time steps of m into nTgs time groups, limits the
// jump between face neighbours to one group and splits the elements into
// nRanks parts with Mesh.Partition.
func NewProblem(m *mesh.Mesh, model velocity.Model, cfl float64, nTgs, nRanks int) (*Problem, error) {
	EToP, err := m.Partition(nRanks)
	if err != nil {
		return nil, err
	}
	return NewPartitionedProblem(m, model, cfl, nTgs, EToP)
}

// NewPartitionedProblem is NewProblem with the rank of every element given.
// Ranks are numbered from zero and none may be empty.
func NewPartitionedProblem(m *mesh.Mesh, model velocity.Model, cfl float64, nTgs int, EToP []int) (*Problem, error) {
	if len(EToP) != m.NumElements() {
		return nil, fmt.Errorf("%d ranks for %d elements", len(EToP), m.NumElements())
	}
	nRanks := 0
	for _, p := range EToP {
		nRanks = max(nRanks, p+1)
	}
	if err := mesh.CheckPartition(EToP, nRanks); err != nil {
		return nil, err
	}

	samples, err := m.VertexSamples(context.Background(), model, 0)
	if err != nil {
		return nil, err
	}
	mats, err := m.ElementMaterials(samples)
	if err != nil {
		return nil, err
	}
	dts, err := m.TimeSteps(mats, cfl)
	if err != nil {
		return nil, err
	}
	tgs, _, err := mesh.TimeGroups(dts, nTgs)
	if err != nil {
		return nil, err
	}
	EToE, EToF, err := m.Connect()
	if err != nil {
		return nil, err
	}
	if err := mesh.LimitTimeGroups(tgs, EToE); err != nil {
		return nil, err
	}
	conn, err := parallel.NewConnector(m.Type.Faces(), EToE, EToF, EToP, tgs)
	if err != nil {
		return nil, err
	}
	if err := conn.Verify(); err != nil {
		return nil, err
	}
	return &Problem{
		Conn:     conn,
		Dts:      dts,
		NByFa:    MinFaceBytes,
		Cycles:   1,
		IterComm: parallel.DefaultIterComm,
	}, nil
}

// GradedChain builds a line mesh of K elements in nTgs blocks whose element
// lengths double from block to block, so block b lands in time group b.
func GradedChain(K, nTgs int) (*mesh.Mesh, error) {
	if nTgs < 1 || K < nTgs {
		return nil, fmt.Errorf("cannot grade %d elements into %d blocks", K, nTgs)
	}
	verts := make([][3]float64, K+1)
	EToV := make([][]int, K)
	x := 0.0
	for e := 0; e < K; e++ {
		x += math.Ldexp(1, e*nTgs/K)
		verts[e+1][0] = x
		EToV[e] = []int{e, e + 1}
	}
	return mesh.New(element.Line, verts, EToV)
}

// RunLocal runs every rank of the problem in-process. A transport failure
// on one rank cancels the others instead of exiting the process.
func RunLocal(ctx context.Context, p *Problem, logger *logrus.Logger, opts ...parallel.RemixOption) ([]Report, error) {
	world := parallel.NewLocalWorld(p.Conn.NumRanks)
	reports := make([]Report, world.Size())
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	g, ctx := errgroup.WithContext(ctx)
	for rank := 0; rank < world.Size(); rank++ {
		abort := parallel.WithAbort(func(err error) {
			cancel(fmt.Errorf("rank %d: %w", rank, err))
		})
		rankOpts := append([]parallel.RemixOption{abort}, opts...)
		g.Go(func() (err error) {
			reports[rank], err = RunRank(ctx, world.Rank(rank), p, logger, rankOpts...)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		if cause := context.Cause(ctx); cause != nil && cause != err {
			return nil, fmt.Errorf("%w (%v)", err, cause)
		}
		return nil, err
	}
	return reports, nil
}

// rankState holds the face storage of one rank
type rankState struct {
	p      *Problem
	rank   int
	remix  *parallel.Remix
	own    []byte
	ghost  []byte
	report Report
}

// RunRank runs the exchange of the transport's rank and finalizes the
// transport. All ranks must run the same problem.
func RunRank(ctx context.Context, tr parallel.Transport, p *Problem, logger *logrus.Logger, opts ...parallel.RemixOption) (Report, error) {
	if p.NByFa < MinFaceBytes {
		return Report{}, fmt.Errorf("%d bytes per face, need at least %d", p.NByFa, MinFaceBytes)
	}
	if tr.Size() != p.Conn.NumRanks {
		return Report{}, fmt.Errorf("problem has %d ranks, transport %d", p.Conn.NumRanks, tr.Size())
	}
	if logger == nil {
		logger = utils.Discard()
	}
	rank := tr.Rank()
	opts = append([]parallel.RemixOption{
		parallel.WithIterComm(p.IterComm),
		parallel.WithRemixLogger(logger),
	}, opts...)

	c := p.Conn
	nEls := c.ElemsPerRank[rank]
	s := &rankState{
		p:     p,
		rank:  rank,
		remix: parallel.NewRemix(tr, opts...),
		own:   make([]byte, nEls*c.NFaces*p.NByFa),
		ghost: make([]byte, nEls*c.NFaces*p.NByFa),
	}
	s.report = Report{Rank: rank, Elements: nEls}
	defer s.remix.Fin()

	err := s.remix.Init(parallel.InitConfig{
		NTgs:   c.NTgs,
		NElFas: uint16(c.NFaces),
		NEls:   nEls,
		NByFa:  p.NByFa,
		Comm:   c.CommStruct(rank),
	})
	if err != nil {
		return Report{}, fmt.Errorf("rank %d: %w", rank, err)
	}
	s.report.Channels = len(s.remix.Channels())
	log := logger.WithFields(logrus.Fields{
		"rank":     rank,
		"elements": nEls,
		"channels": s.report.Channels,
		"mpi":      s.remix.VersionString(),
	})
	log.Debug("remix initialized")

	if err := s.checkNeighbours(ctx); err != nil {
		return Report{}, fmt.Errorf("rank %d: %w", rank, err)
	}

	start := time.Now()
	nFine := 1 << (c.NTgs - 1)
	for cycle := 0; cycle < p.Cycles; cycle++ {
		for fine := 0; fine < nFine; fine++ {
			if err := s.step(ctx, cycle*nFine+fine, fine); err != nil {
				return Report{}, fmt.Errorf("rank %d step %d: %w", rank, cycle*nFine+fine, err)
			}
		}
	}
	s.report.Elapsed = time.Since(start)

	minDt := math.Inf(1)
	for _, g := range c.LocalToGlobalElem[rank] {
		minDt = min(minDt, p.Dts[g])
	}
	lead := s.remix.Min([]float64{minDt})
	if len(lead) != 1 {
		return Report{}, fmt.Errorf("rank %d: min time step reduction failed", rank)
	}
	s.report.MinDtLeader = lead[0]

	log.WithFields(logrus.Fields{
		"steps":    s.report.Steps,
		"messages": s.report.Messages,
		"bytes":    s.report.Bytes,
		"elapsed":  s.report.Elapsed,
		"leader":   s.report.MinDtLeader,
	}).Info("exchange finished")
	return s.report, nil
}

// checkNeighbours swaps element counts per channel and time groups per face
// and compares them with the connectivity.
func (s *rankState) checkNeighbours(ctx context.Context) error {
	const nByCh, nByFa = 4, 2
	c := s.p.Conn
	chs := s.remix.Channels()

	var sendLen, recvLen int
	for _, ch := range chs {
		sendLen += nByCh + len(ch.Send.Faces)*nByFa
		recvLen += nByCh + len(ch.Recv.Faces)*nByFa
	}
	send := make([]byte, sendLen)
	recv := make([]byte, recvLen)

	off := 0
	for _, ch := range chs {
		binary.LittleEndian.PutUint32(send[off:], uint32(c.ElemsPerRank[s.rank]))
		off += nByCh
		for range ch.Send.Faces {
			binary.LittleEndian.PutUint16(send[off:], ch.Send.Tg)
			off += nByFa
		}
	}

	if err := s.remix.SyncData(ctx, nByCh, nByFa, send, recv); err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	off = 0
	for _, ch := range chs {
		if got, want := int(binary.LittleEndian.Uint32(recv[off:])), c.ElemsPerRank[ch.Rank]; got != want {
			return fmt.Errorf("rank %d reports %d elements, want %d", ch.Rank, got, want)
		}
		off += nByCh
		for i, el := range ch.Recv.Elements {
			g := c.LocalToGlobalElem[s.rank][el]
			n := c.EToE[g][ch.Recv.Faces[i]]
			if got := binary.LittleEndian.Uint16(recv[off:]); got != c.EToTg[n] {
				return fmt.Errorf("element %d: neighbour %d reports time group %d, want %d", g, n, got, c.EToTg[n])
			}
			off += nByFa
		}
	}
	return nil
}

// stamp writes (element, face, step) into every own face
func (s *rankState) stamp(step int) {
	c := s.p.Conn
	for le, g := range c.LocalToGlobalElem[s.rank] {
		for f := 0; f < c.NFaces; f++ {
			off := (le*c.NFaces + f) * s.p.NByFa
			binary.LittleEndian.PutUint32(s.own[off:], uint32(g))
			binary.LittleEndian.PutUint16(s.own[off+4:], uint16(f))
			binary.LittleEndian.PutUint16(s.own[off+6:], uint16(step))
		}
	}
}

type due struct {
	lt bool
	tg uint16
}

// step advances every time group whose step starts at fine step fine. A
// group ships its less-than messages at the steps that begin a step of the
// next coarser group, so both ends of every message post it in the same
// fine step.
func (s *rankState) step(ctx context.Context, step, fine int) error {
	c := s.p.Conn
	var active []due
	for tg := uint16(0); tg < c.NTgs; tg++ {
		if fine%(1<<tg) == 0 {
			active = append(active, due{lt: (fine>>tg)%2 == 0, tg: tg})
		}
	}

	s.stamp(step)
	r := s.remix
	for _, d := range active {
		if err := r.Gather(d.lt, d.tg, s.own); err != nil {
			return err
		}
		if err := r.BeginRecvs(d.lt, d.tg); err != nil {
			return err
		}
		if err := r.BeginSends(d.lt, d.tg); err != nil {
			return err
		}
	}

	for {
		done := true
		for _, d := range active {
			done = done && r.FinSends(d.lt, d.tg) && r.FinRecvs(d.lt, d.tg)
		}
		if done {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		r.Comm()
		runtime.Gosched()
	}

	for _, d := range active {
		if err := r.Scatter(d.lt, d.tg, s.ghost); err != nil {
			return err
		}
		if err := s.verify(d, step); err != nil {
			return err
		}
	}
	s.report.Steps++
	return nil
}

// verify checks that the ghost faces received for d carry the neighbour's
// stamp of this step
func (s *rankState) verify(d due, step int) error {
	c := s.p.Conn
	chs := s.remix.Channels()
	for i := range chs {
		ch := &chs[i]
		if !parallel.CheckRecvTgLt(ch, d.lt, d.tg) {
			continue
		}
		s.report.Messages++
		s.report.Bytes += len(ch.Recv.Faces) * s.p.NByFa
		for j, el := range ch.Recv.Elements {
			f := int(ch.Recv.Faces[j])
			g := c.LocalToGlobalElem[s.rank][el]
			n, nf := c.EToE[g][f], c.EToF[g][f]
			off := (el*c.NFaces + f) * s.p.NByFa
			gotEl := binary.LittleEndian.Uint32(s.ghost[off:])
			gotFa := binary.LittleEndian.Uint16(s.ghost[off+4:])
			gotStep := binary.LittleEndian.Uint16(s.ghost[off+6:])
			if int(gotEl) != n || int(gotFa) != nf || gotStep != uint16(step) {
				return fmt.Errorf("element %d face %d: ghost (%d,%d,%d), want (%d,%d,%d)",
					g, f, gotEl, gotFa, gotStep, n, nf, uint16(step))
			}
		}
	}
	return nil
}
