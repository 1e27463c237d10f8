package main

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/notargets/aderseis/config"
	"github.com/notargets/aderseis/element"
	"github.com/notargets/aderseis/mesh"
	"github.com/notargets/aderseis/timepred"
	"github.com/notargets/aderseis/velocity"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Run the ADER time prediction over a batch of elements.",
	Long: "`predict` builds star matrices from a mesh (predict.mesh) or from " +
		"synthetic elements and times repeated Cauchy-Kowalevski predictions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		model, err := cfg.Velocity.Model()
		if err != nil {
			return err
		}
		rep, err := runPredict(cmd.Context(), cfg.Predict, model, logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(),
			"%d elements x %d steps on %s: %v (%.2f GFLOP/s), checksum %.6e\n",
			rep.Elements, rep.Steps, rep.Backend, rep.Elapsed, rep.GFlops, rep.Checksum)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(predictCmd)
}

type predictReport struct {
	Backend  string
	Elements int
	Steps    int
	Elapsed  time.Duration
	GFlops   float64
	Checksum float64 // Σ|tInt| after the last step
}

func runPredict(ctx context.Context, pc config.Predict, model velocity.Model, logger *logrus.Logger) (predictReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var msh *mesh.Mesh
	t, err := element.ParseType(pc.Element)
	if err != nil {
		return predictReport{}, err
	}
	if pc.Mesh != "" {
		if msh, err = mesh.Load(pc.Mesh); err != nil {
			return predictReport{}, err
		}
		t = msh.Type
	}

	backend, release, err := newBackend(pc.Backend, pc.Device)
	if err != nil {
		return predictReport{}, err
	}
	// the device outlives the kernels released by pred.Close
	atexit.Register(release)

	workers := pc.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	pred, err := timepred.New(timepred.Config{
		Element:    t,
		SpaceOrder: pc.SpaceOrder,
		TimeOrder:  pc.TimeOrder,
	}, timepred.WithBackend(backend), timepred.WithWorkers(workers), timepred.WithLogger(logger))
	if err != nil {
		return predictReport{}, err
	}
	defer pred.Close()

	var stars [][][]float64
	if msh != nil {
		stars, err = meshStars(ctx, msh, model)
	} else {
		stars, err = syntheticStars(t, pc.Elements, model)
	}
	if err != nil {
		return predictReport{}, err
	}
	els := newElementData(pred, stars)

	stats := pred.Stats()
	logger.WithFields(logrus.Fields{
		"run":      runID,
		"element":  t,
		"order":    pc.SpaceOrder,
		"backend":  stats.Backend,
		"kernels":  stats.Kernels,
		"elements": len(els),
		"workers":  workers,
	}).Info("starting time prediction")
	for _, s := range stats.Shapes {
		logger.Debug(s)
	}

	start := time.Now()
	for step := 0; step < pc.Steps; step++ {
		if err := pred.Batch(ctx, pc.Dt, els); err != nil {
			return predictReport{}, fmt.Errorf("step %d: %w", step, err)
		}
	}
	elapsed := time.Since(start)

	rep := predictReport{
		Backend:  stats.Backend,
		Elements: len(els),
		Steps:    pc.Steps,
		Elapsed:  elapsed,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		rep.GFlops = float64(stats.Flops) * float64(len(els)*pc.Steps) / secs / 1e9
	}
	for _, el := range els {
		for _, v := range el.TInt {
			rep.Checksum += math.Abs(v)
		}
	}
	return rep, nil
}

// newElementData allocates the batch with deterministic pseudo-random DOFs
func newElementData(pred *timepred.Predictor, stars [][][]float64) []timepred.ElementData {
	rng := rand.New(rand.NewPCG(1, 2))
	size := pred.Size()
	els := make([]timepred.ElementData, len(stars))
	for i, star := range stars {
		dofs := make([]float64, size)
		for j := range dofs {
			dofs[j] = 2*rng.Float64() - 1
		}
		els[i] = timepred.ElementData{
			Star: star,
			DOFs: dofs,
			TInt: make([]float64, size),
		}
	}
	return els
}

// syntheticStars stacks n reference elements, scaled by 10 m, down the z
// axis and takes their material from the model at the element centre.
func syntheticStars(t element.Type, n int, model velocity.Model) ([][][]float64, error) {
	const h = 10.0
	dims := t.Dimensions()
	verts := make([][]float64, t.Vertices())
	for v := range verts {
		verts[v] = make([]float64, dims)
		if v > 0 {
			verts[v][v-1] = h
		}
	}
	jacInv, _, err := element.AffineMap(t, verts)
	if err != nil {
		return nil, err
	}

	stars := make([][][]float64, n)
	for i := range stars {
		s, err := model.Query(h/2, h/2, -(float64(i)+0.5)*h)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		mat := element.MaterialFromVelocities(s.Vp, s.Vs, s.Rho)
		if stars[i], err = element.StarMatrices(t, mat, jacInv); err != nil {
			return nil, err
		}
	}
	return stars, nil
}

// meshStars derives the star matrices from the mesh geometry and the vertex
// averaged materials
func meshStars(ctx context.Context, m *mesh.Mesh, model velocity.Model) ([][][]float64, error) {
	samples, err := m.VertexSamples(ctx, model, 0)
	if err != nil {
		return nil, err
	}
	mats, err := m.ElementMaterials(samples)
	if err != nil {
		return nil, err
	}
	return m.StarMatrices(mats)
}
