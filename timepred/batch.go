package timepred

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ElementData carries the inputs and outputs of one element in a Batch.
// Der is optional; when nil the derivatives are kept in worker buffers.
type ElementData struct {
	Star [][]float64
	DOFs []float64
	TInt []float64
	Der  [][]float64
}

// Batch runs CK for every element with up to WithWorkers goroutines. Each
// worker owns its scratch and derivative buffers.
func (p *Predictor) Batch(ctx context.Context, dt float64, elements []ElementData) error {
	size := p.Size()
	for i, el := range elements {
		if err := p.checkElement(el, size); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}

	workers := p.workers
	if workers > len(elements) {
		workers = len(elements)
	}
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			buf := p.NewBuffers()
			for i := w; i < len(elements); i += workers {
				if err := ctx.Err(); err != nil {
					return err
				}
				el := elements[i]
				der := el.Der
				if der == nil {
					der = buf.Der
				}
				p.CK(dt, el.Star, el.DOFs, buf.Scratch, der, el.TInt)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	p.logger.WithFields(logrus.Fields{
		"elements": len(elements),
		"workers":  workers,
		"dt":       dt,
	}).Debug("batch prediction done")
	return nil
}

func (p *Predictor) checkElement(el ElementData, size int) error {
	nq := p.cfg.Quantities
	switch {
	case len(el.Star) < p.dims:
		return fmt.Errorf("need %d star matrices, have %d", p.dims, len(el.Star))
	case len(el.DOFs) < size:
		return fmt.Errorf("dofs length %d < %d", len(el.DOFs), size)
	case len(el.TInt) < size:
		return fmt.Errorf("time integral length %d < %d", len(el.TInt), size)
	}
	for d := 0; d < p.dims; d++ {
		if len(el.Star[d]) < nq*nq {
			return fmt.Errorf("star matrix %d length %d < %d", d, len(el.Star[d]), nq*nq)
		}
	}
	if el.Der != nil {
		if len(el.Der) < p.cfg.TimeOrder {
			return fmt.Errorf("need %d derivative buffers, have %d", p.cfg.TimeOrder, len(el.Der))
		}
		for l := 0; l < p.cfg.TimeOrder; l++ {
			if len(el.Der[l]) < size {
				return fmt.Errorf("derivative %d length %d < %d", l, len(el.Der[l]), size)
			}
		}
	}
	return nil
}
