package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/notargets/aderseis/config"
	"github.com/notargets/aderseis/mesh"
	"github.com/notargets/aderseis/velocity"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Annotate a mesh with velocity model data.",
	Long: "`annotate` queries the velocity model at the vertices of a mesh, " +
		"writes a Gmsh view of the characteristic lengths (annotate.pos_file) " +
		"and reports the time step clustering (annotate.output, stdout when empty).",
	RunE: func(cmd *cobra.Command, args []string) error {
		ac := cfg.Annotate
		if ac.Mesh == "" {
			return errors.New("annotate.mesh is not set")
		}
		m, err := mesh.Load(ac.Mesh)
		if err != nil {
			return err
		}
		model, err := cfg.Velocity.Model()
		if err != nil {
			return err
		}
		rep, err := runAnnotate(cmd.Context(), m, ac, model, logger)
		if err != nil {
			return err
		}
		if ac.Output == "" {
			return rep.writeYAML(cmd.OutOrStdout())
		}
		f, err := os.Create(ac.Output)
		if err != nil {
			return err
		}
		if err := rep.writeYAML(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	},
}

func init() {
	rootCmd.AddCommand(annotateCmd)
}

type groupReport struct {
	Group    int     `yaml:"group"`
	Dt       float64 `yaml:"dt"`
	Elements int     `yaml:"elements"`
}

type annotateReport struct {
	Run        string        `yaml:"run"`
	Element    string        `yaml:"element"`
	Vertices   int           `yaml:"vertices"`
	Elements   int           `yaml:"elements"`
	MinLength  float64       `yaml:"min_length"`
	MaxLength  float64       `yaml:"max_length"`
	TimeGroups []groupReport `yaml:"time_groups"`
	// Speedup of LTS over global time stepping at the smallest time step
	Speedup float64 `yaml:"speedup"`
}

func (r *annotateReport) writeYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

func runAnnotate(ctx context.Context, m *mesh.Mesh, ac config.Annotate, model velocity.Model, logger *logrus.Logger) (*annotateReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	samples, err := m.VertexSamples(ctx, model, ac.Workers)
	if err != nil {
		return nil, err
	}
	cls, err := mesh.CharacteristicLengths(samples, ac.ElmtsPerWave)
	if err != nil {
		return nil, err
	}
	if ac.PosFile != "" {
		if err := m.WriteGmshViewFile(ac.PosFile, cls); err != nil {
			return nil, err
		}
		logger.WithField("file", ac.PosFile).Info("wrote characteristic lengths")
	}

	mats, err := m.ElementMaterials(samples)
	if err != nil {
		return nil, err
	}
	dts, err := m.TimeSteps(mats, ac.CFL)
	if err != nil {
		return nil, err
	}
	tgs, groupDts, err := mesh.TimeGroups(dts, ac.TimeGroups)
	if err != nil {
		return nil, err
	}
	EToE, _, err := m.Connect()
	if err != nil {
		return nil, err
	}
	if err := mesh.LimitTimeGroups(tgs, EToE); err != nil {
		return nil, err
	}

	rep := &annotateReport{
		Run:        runID,
		Element:    m.Type.String(),
		Vertices:   len(m.Vertices),
		Elements:   m.NumElements(),
		MinLength:  cls[0],
		MaxLength:  cls[0],
		TimeGroups: make([]groupReport, len(groupDts)),
	}
	for _, cl := range cls {
		rep.MinLength = min(rep.MinLength, cl)
		rep.MaxLength = max(rep.MaxLength, cl)
	}
	for g, dt := range groupDts {
		rep.TimeGroups[g] = groupReport{Group: g, Dt: dt}
	}
	// work per unit time: elements of group g take one step per groupDts[g]
	lts := 0.0
	for _, tg := range tgs {
		rep.TimeGroups[tg].Elements++
		lts += groupDts[0] / groupDts[tg]
	}
	rep.Speedup = float64(len(tgs)) / lts

	logger.WithFields(logrus.Fields{
		"run":      runID,
		"elements": rep.Elements,
		"speedup":  fmt.Sprintf("%.2f", rep.Speedup),
	}).Info("annotated mesh")
	return rep, nil
}
