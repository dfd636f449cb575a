//go:build linux

package netpoll

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ganjayant/lsmkv/compressors"
	"github.com/ganjayant/lsmkv/engine"
)

func newTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	compressor, err := compressors.ByName("none")
	require.NoError(t, err)

	eng, err := engine.Open(engine.Options{
		DataDir:           t.TempDir(),
		MemtableThreshold: 1 << 20,
		MaxSegmentCount:   100,
		Compressor:        compressor,
	})
	require.NoError(t, err)

	srv, err := New("127.0.0.1:0", eng, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		srv.Run()
		close(done)
	}()

	return srv, func() {
		srv.Close()
		<-done
		eng.Close()
	}
}

func dialServer(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.Addr(), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServerRoundTripsSetAndGet(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	conn := dialServer(t, srv)
	reader := bufio.NewReader(conn)

	_, err := conn.Write([]byte("*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"))
	require.NoError(t, err)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "+OK\r\n", line)

	_, err = conn.Write([]byte("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"))
	require.NoError(t, err)
	header, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "$3\r\n", header)
	body := make([]byte, 5)
	_, err = reader.Read(body)
	require.NoError(t, err)
	require.Equal(t, "bar\r\n", string(body))
}

func TestServerGetMissingKeyReturnsNullBulkString(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	conn := dialServer(t, srv)
	reader := bufio.NewReader(conn)

	_, err := conn.Write([]byte("*2\r\n$3\r\nGET\r\n$7\r\nmissing\r\n"))
	require.NoError(t, err)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "$-1\r\n", line)
}

func TestServerDeleteAlwaysReportsOne(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	conn := dialServer(t, srv)
	reader := bufio.NewReader(conn)

	_, err := conn.Write([]byte("*2\r\n$3\r\nDEL\r\n$7\r\nmissing\r\n"))
	require.NoError(t, err)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ":1\r\n", line)
}

func TestServerHandlesPipelinedCommandsInOneWrite(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	conn := dialServer(t, srv)
	reader := bufio.NewReader(conn)

	pipelined := "*3\r\n$3\r\nSET\r\n$1\r\na\r\n$1\r\n1\r\n" +
		"*3\r\n$3\r\nSET\r\n$1\r\nb\r\n$1\r\n2\r\n" +
		"*2\r\n$3\r\nGET\r\n$1\r\na\r\n"
	_, err := conn.Write([]byte(pipelined))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		require.Equal(t, "+OK\r\n", line)
	}
	header, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "$1\r\n", header)
	body := make([]byte, 3)
	_, err = reader.Read(body)
	require.NoError(t, err)
	require.Equal(t, "1\r\n", string(body))
}

func TestServerKeepsConnectionOpenAfterMalformedCommand(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	conn := dialServer(t, srv)
	reader := bufio.NewReader(conn)

	_, err := conn.Write([]byte("*2\r\n$4\r\nPING\r\n$1\r\na\r\n"))
	require.NoError(t, err)

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "-ERR")
	require.Contains(t, line, "Invalid request:")

	_, err = conn.Write([]byte("*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"))
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err = reader.ReadString('\n')
	require.NoError(t, err, "connection should stay open and keep serving commands after a malformed one")
	require.Equal(t, "+OK\r\n", line)
}
