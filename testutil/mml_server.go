package testutil

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/stretchr/testify/assert"
)

// Responder delivers the response text sent by a test server for a received command line.
// The command is supplied without its line terminator.
type Responder func(cmd string) string

// MMLServer represents a test MML server, listening on plain TCP.
type MMLServer struct {
	listener net.Listener
	recorder *recorder
}

// NewMMLServer delivers a new test MML server, answering each command line with the output of the responder.
func NewMMLServer(t assert.TestingT, responder Responder) *MMLServer {
	listener, err := net.Listen("tcp", "localhost:0")
	assert.NoError(t, err, "Listen failed")

	ts := &MMLServer{listener: listener, recorder: &recorder{}}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go serveCommands(conn, ts.recorder, responder)
		}
	}()
	return ts
}

// Port delivers the tcp port number on which the server is listening.
func (ts *MMLServer) Port() int {
	return ts.listener.Addr().(*net.TCPAddr).Port
}

// Address delivers the host:port address on which the server is listening.
func (ts *MMLServer) Address() string {
	return fmt.Sprintf("localhost:%d", ts.Port())
}

// Commands delivers the command lines received by the server, in order.
func (ts *MMLServer) Commands() []string {
	return ts.recorder.commands()
}

// Close closes any resources used by the server.
func (ts *MMLServer) Close() {
	// nolint: gosec, errcheck
	ts.listener.Close()
}

// Response builds an MML response block with the given return code, followed by the body lines and terminated
// by the default end string.
func Response(retcode int, lines ...string) string {
	var sb strings.Builder
	sb.WriteString("\r\n+++    TESTNE        2026-10-18 10:00:00\r\n")
	sb.WriteString("O&M    #1\r\n")
	fmt.Fprintf(&sb, "RETCODE = %d  %s\r\n\r\n", retcode, retcodeText(retcode))
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteString("\r\n")
	}
	sb.WriteString("\r\n---    END\r\n")
	return sb.String()
}

func retcodeText(retcode int) string {
	if retcode == 0 {
		return "Operation succeeded"
	}
	return "Operation failed"
}

type recorder struct {
	mu   sync.Mutex
	cmds []string
}

func (r *recorder) record(cmd string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
}

func (r *recorder) commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.cmds...)
}

// Reads CRLF terminated commands from the stream, writing the response to each.
func serveCommands(rw io.ReadWriteCloser, rec *recorder, responder Responder) {
	// nolint: errcheck
	defer rw.Close()
	rdr := bufio.NewReader(rw)
	wrtr := bufio.NewWriter(rw)
	for {
		input, err := rdr.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(input, "\r\n")
		rec.record(cmd)
		if _, err = wrtr.WriteString(responder(cmd)); err != nil {
			return
		}
		if err = wrtr.Flush(); err != nil {
			return
		}
	}
}
