package netpoll

const (
	initialBufferSize    = 4096
	initialEventListSize = 512
	readChunkSize        = 4096
)

// connection holds the per-socket state the event loop threads through
// readiness callbacks between reads. buf accumulates bytes received but
// not yet decoded into a full command; out accumulates encoded replies
// not yet written back to the client, for the case where a single
// write() would block and the rest must wait for the next writable
// event.
type connection struct {
	fd            int
	buf           []byte
	out           []byte
	writeInterest bool
}

func newConnection(fd int) *connection {
	return &connection{fd: fd, buf: make([]byte, 0, initialBufferSize)}
}
