// This file provides the MPI transport.  Errors are returned to the caller
// (MPI_ERRORS_RETURN) and routed to the Remix abort handler.

//go:build mpi

package parallel

/*
#include <stdlib.h>
#include <mpi.h>

typedef struct { double val; int rank; } remix_double_int;

static int remix_init(int *argc, char ***argv) {
	int done = 0;
	MPI_Initialized(&done);
	if (done) return MPI_SUCCESS;
	int err = MPI_Init(argc, argv);
	if (err != MPI_SUCCESS) return err;
	return MPI_Comm_set_errhandler(MPI_COMM_WORLD, MPI_ERRORS_RETURN);
}

static int remix_rank(int *r) { return MPI_Comm_rank(MPI_COMM_WORLD, r); }
static int remix_size(int *s) { return MPI_Comm_size(MPI_COMM_WORLD, s); }

static int remix_isend(void *buf, int n, int dest, int tag, MPI_Request *req) {
	return MPI_Isend(buf, n, MPI_BYTE, dest, tag, MPI_COMM_WORLD, req);
}

static int remix_irecv(void *buf, int n, int src, int tag, MPI_Request *req) {
	return MPI_Irecv(buf, n, MPI_BYTE, src, tag, MPI_COMM_WORLD, req);
}

static int remix_test(MPI_Request *req, int *flag) {
	return MPI_Test(req, flag, MPI_STATUS_IGNORE);
}

static int remix_minloc(remix_double_int *in, remix_double_int *out, int n) {
	return MPI_Allreduce(in, out, n, MPI_DOUBLE_INT, MPI_MINLOC, MPI_COMM_WORLD);
}

static void remix_error_string(int code, char *msg) {
	int len = 0;
	MPI_Error_string(code, msg, &len);
	msg[len] = 0;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

type mpiTransport struct {
	rank, size int
	version    string

	mu     sync.Mutex
	allocs map[*byte]unsafe.Pointer
}

// mpiError converts an MPI return code
func mpiError(code C.int, op string) error {
	if code == C.MPI_SUCCESS {
		return nil
	}
	msg := (*C.char)(C.malloc(C.size_t(C.MPI_MAX_ERROR_STRING + 1)))
	defer C.free(unsafe.Pointer(msg))
	C.remix_error_string(code, msg)
	return fmt.Errorf("%s: %s", op, C.GoString(msg))
}

// InitMPI initializes MPI with the process arguments and returns the
// transport of MPI_COMM_WORLD.
func InitMPI(args []string) (Transport, error) {
	argc := C.int(len(args))
	argv := (**C.char)(C.malloc(C.size_t(len(args)+1) * C.size_t(unsafe.Sizeof(uintptr(0)))))
	view := unsafe.Slice(argv, len(args)+1)
	for i, a := range args {
		view[i] = C.CString(a)
	}
	view[len(args)] = nil
	if err := mpiError(C.remix_init(&argc, &argv), "MPI_Init"); err != nil {
		return nil, err
	}

	var rank, size, major, minor C.int
	if err := mpiError(C.remix_rank(&rank), "MPI_Comm_rank"); err != nil {
		return nil, err
	}
	if err := mpiError(C.remix_size(&size), "MPI_Comm_size"); err != nil {
		return nil, err
	}
	C.MPI_Get_version(&major, &minor)
	return &mpiTransport{
		rank:    int(rank),
		size:    int(size),
		version: fmt.Sprintf("%d.%d", int(major), int(minor)),
		allocs:  make(map[*byte]unsafe.Pointer),
	}, nil
}

func (m *mpiTransport) Rank() int       { return m.rank }
func (m *mpiTransport) Size() int       { return m.size }
func (m *mpiTransport) Version() string { return m.version }

// Alloc returns C memory, which the MPI library may hold on to while a
// request is outstanding.
func (m *mpiTransport) Alloc(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative buffer size %d", n)
	}
	// one byte minimum keeps zero-sized messages addressable
	p := C.malloc(C.size_t(n + 1))
	if p == nil {
		return nil, fmt.Errorf("failed to allocate %d bytes", n)
	}
	buf := unsafe.Slice((*byte)(p), n+1)[:n]
	m.mu.Lock()
	m.allocs[&buf[:1][0]] = p
	m.mu.Unlock()
	return buf, nil
}

func (m *mpiTransport) Free(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	key := &buf[:1][0]
	m.mu.Lock()
	p, ok := m.allocs[key]
	delete(m.allocs, key)
	m.mu.Unlock()
	if ok {
		C.free(p)
	}
}

type mpiRequest struct {
	req  C.MPI_Request
	done bool
}

func (r *mpiRequest) Test() (bool, error) {
	if r.done {
		return true, nil
	}
	var flag C.int
	if err := mpiError(C.remix_test(&r.req, &flag), "MPI_Test"); err != nil {
		return false, err
	}
	r.done = flag != 0
	return r.done, nil
}

func bufPtr(buf []byte) unsafe.Pointer {
	return unsafe.Pointer(&buf[:1][0])
}

func (m *mpiTransport) Isend(buf []byte, dest, tag int) (Request, error) {
	if dest < 0 || dest >= m.size {
		return nil, fmt.Errorf("%w: %d", ErrRank, dest)
	}
	r := &mpiRequest{}
	code := C.remix_isend(bufPtr(buf), C.int(len(buf)), C.int(dest), C.int(tag), &r.req)
	if err := mpiError(code, "MPI_Isend"); err != nil {
		return nil, err
	}
	return r, nil
}

func (m *mpiTransport) Irecv(buf []byte, source, tag int) (Request, error) {
	if source < 0 || source >= m.size {
		return nil, fmt.Errorf("%w: %d", ErrRank, source)
	}
	r := &mpiRequest{}
	code := C.remix_irecv(bufPtr(buf), C.int(len(buf)), C.int(source), C.int(tag), &r.req)
	if err := mpiError(code, "MPI_Irecv"); err != nil {
		return nil, err
	}
	return r, nil
}

func (m *mpiTransport) AllreduceMinLoc(vals []float64) ([]int, error) {
	n := len(vals)
	if n == 0 {
		return nil, nil
	}
	in := make([]C.remix_double_int, n)
	out := make([]C.remix_double_int, n)
	for i, v := range vals {
		in[i].val = C.double(v)
		in[i].rank = C.int(m.rank)
	}
	if err := mpiError(C.remix_minloc(&in[0], &out[0], C.int(n)), "MPI_Allreduce"); err != nil {
		return nil, err
	}
	owners := make([]int, n)
	for i := range out {
		owners[i] = int(out[i].rank)
	}
	return owners, nil
}

func (m *mpiTransport) Finalize() error {
	m.mu.Lock()
	for k, p := range m.allocs {
		C.free(p)
		delete(m.allocs, k)
	}
	m.mu.Unlock()
	return mpiError(C.MPI_Finalize(), "MPI_Finalize")
}
