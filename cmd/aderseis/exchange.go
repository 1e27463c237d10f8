package main

import (
	"context"
	"fmt"
	"os"

	"github.com/notargets/aderseis/config"
	"github.com/notargets/aderseis/exchange"
	"github.com/notargets/aderseis/mesh"
	"github.com/notargets/aderseis/parallel"
	"github.com/notargets/aderseis/velocity"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var exchangeCmd = &cobra.Command{
	Use:   "exchange",
	Short: "Run the LTS face exchange of a partitioned mesh.",
	Long: "`exchange` partitions a mesh (exchange.mesh) or a graded line of " +
		"elements, bins its elements into time groups and exchanges stamped " +
		"face data between the ranks, in-process or over MPI.",
	RunE: func(cmd *cobra.Command, args []string) error {
		model, err := cfg.Velocity.Model()
		if err != nil {
			return err
		}
		reports, err := runExchange(cmd.Context(), cfg.Exchange, cfg.Annotate.CFL, model, logger)
		if err != nil {
			return err
		}
		for _, rep := range reports {
			leader := ""
			if rep.MinDtLeader {
				leader = " (min dt)"
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"rank %d%s: %d elements, %d channels, %d steps, %d messages, %d bytes, %v\n",
				rep.Rank, leader, rep.Elements, rep.Channels, rep.Steps, rep.Messages, rep.Bytes, rep.Elapsed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exchangeCmd)
}

func buildProblem(xc config.Exchange, cfl float64, model velocity.Model, ranks int) (*exchange.Problem, error) {
	var m *mesh.Mesh
	var err error
	if xc.Mesh != "" {
		m, err = mesh.Load(xc.Mesh)
	} else {
		m, err = exchange.GradedChain(xc.Elements, xc.TimeGroups)
	}
	if err != nil {
		return nil, err
	}
	p, err := exchange.NewProblem(m, model, cfl, xc.TimeGroups, ranks)
	if err != nil {
		return nil, err
	}
	p.NByFa = xc.BytesPerFace
	p.Cycles = xc.Cycles
	p.IterComm = xc.IterComm
	return p, nil
}

// runExchange runs all ranks in-process, or this process's rank of an MPI
// job. MPI runs report only the local rank.
func runExchange(ctx context.Context, xc config.Exchange, cfl float64, model velocity.Model, logger *logrus.Logger) ([]exchange.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if xc.Transport == "mpi" {
		tr, err := parallel.InitMPI(os.Args)
		if err != nil {
			return nil, err
		}
		p, err := buildProblem(xc, cfl, model, tr.Size())
		if err != nil {
			return nil, err
		}
		rep, err := exchange.RunRank(ctx, tr, p, logger)
		if err != nil {
			return nil, err
		}
		return []exchange.Report{rep}, nil
	}

	p, err := buildProblem(xc, cfl, model, xc.Ranks)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"run":        runID,
		"ranks":      p.Conn.NumRanks,
		"timeGroups": p.Conn.NTgs,
		"elements":   p.Conn.K,
	}).Info("starting exchange")
	return exchange.RunLocal(ctx, p, logger)
}
