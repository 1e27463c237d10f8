// This file provides the MPI stub for builds without MPI support

//go:build !mpi

package parallel

import "errors"

// ErrNoMPI is returned by InitMPI in builds without the mpi tag
var ErrNoMPI = errors.New("built without MPI support, rebuild with -tags mpi")

// InitMPI initializes MPI with the process arguments and returns the
// transport of MPI_COMM_WORLD.
func InitMPI(args []string) (Transport, error) {
	return nil, ErrNoMPI
}
