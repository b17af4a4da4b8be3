package mml

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/imdario/mergo"
)

// The Transport layer provides a duplex byte stream between the client and a network element.
// MML responses carry no length prefix, so the transport offers reads that are framed by a delimiter
// and bounded by a timeout.

//go:generate mockgen -destination=mocks/mock_transport.go -package=mocks github.com/damianoneill/mml/mml Transport

// Transport defines the operations required of an MML transport.
// A Transport is not safe for concurrent use.
type Transport interface {
	// Write writes the full buffer to the network element.
	io.Writer

	// ReadUntil blocks until delim has been received or the timeout elapses.
	// It returns the input up to and including delim, or whatever was accumulated when the timeout
	// elapsed, which may be empty. Input following delim remains buffered for the next read.
	// A *ConnectionError is returned if the peer closes or resets the connection.
	ReadUntil(delim []byte, timeout time.Duration) ([]byte, error)

	// Drain returns and discards any input that has been received but not consumed, without blocking.
	Drain() []byte

	// Close releases the transport. It is safe to call Close more than once.
	io.Closer
}

// TransportConfig defines properties controlling transport behaviour.
type TransportConfig struct {
	// ConnectTimeout bounds the time taken to establish the connection.
	ConnectTimeout time.Duration
	// Trace defines the hooks that will be invoked for transport events.
	Trace *ClientTrace
}

// DefaultTransportConfig defines the values applied to unspecified TransportConfig fields.
var DefaultTransportConfig = TransportConfig{
	ConnectTimeout: 10 * time.Second,
	Trace:          DefaultLoggingHooks,
}

const readBufferLength = 10000

type streamTransport struct {
	target string
	rwc    io.ReadWriteCloser
	trace  *ClientTrace

	// Used to queue the inputs received from the peer, closed when the reader terminates.
	inputs chan []byte
	// Set by the reader before inputs is closed.
	readErr error
	// Input received but not yet consumed by a read.
	pending []byte
	eof     bool

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewTCPTransport connects to the target, a host:port address, over plain TCP.
func NewTCPTransport(ctx context.Context, target string, cfg *TransportConfig) (t Transport, err error) {
	resolvedConfig := resolveTransportConfig(cfg)
	trace := resolvedConfig.Trace

	trace.ConnectStart(target)
	defer func(begin time.Time) {
		trace.ConnectDone(target, err, time.Since(begin))
	}(time.Now())

	dialer := &net.Dialer{Timeout: resolvedConfig.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, newConnectionError("dial", target, err)
	}
	return newStreamTransport(target, conn, trace), nil
}

// NewStreamTransport adapts an established byte stream, such as a net.Conn, to the Transport interface.
// The transport takes ownership of rwc, closing it when the transport is closed.
func NewStreamTransport(rwc io.ReadWriteCloser, trace *ClientTrace) Transport {
	target := ""
	if conn, ok := rwc.(net.Conn); ok && conn.RemoteAddr() != nil {
		target = conn.RemoteAddr().String()
	}
	return newStreamTransport(target, rwc, completeTrace(trace))
}

func newStreamTransport(target string, rwc io.ReadWriteCloser, trace *ClientTrace) *streamTransport {
	t := &streamTransport{
		target: target,
		rwc:    rwc,
		trace:  trace,
		inputs: make(chan []byte),
		done:   make(chan struct{}),
	}
	t.launchReader()
	return t
}

func (t *streamTransport) Write(p []byte) (c int, err error) {
	defer func() {
		t.trace.WriteDone(p, c, err)
	}()
	select {
	case <-t.done:
		return 0, newConnectionError("write", t.target, ErrSessionClosed)
	default:
	}
	c, err = t.rwc.Write(p)
	if err == nil && c < len(p) {
		err = io.ErrShortWrite
	}
	return c, newConnectionError("write", t.target, err)
}

func (t *streamTransport) ReadUntil(delim []byte, timeout time.Duration) (output []byte, err error) {
	defer func(begin time.Time) {
		t.trace.ReadDone(output, delim, err, time.Since(begin))
	}(time.Now())

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		if idx := bytes.Index(t.pending, delim); idx >= 0 {
			return t.consume(idx + len(delim)), nil
		}
		if t.eof {
			return t.consume(len(t.pending)), t.readError()
		}
		select {
		case b, ok := <-t.inputs:
			if !ok {
				t.eof = true
				continue
			}
			t.pending = append(t.pending, b...)
		case <-timer.C:
			return t.consume(len(t.pending)), nil
		}
	}
}

func (t *streamTransport) Drain() []byte {
	for !t.eof {
		select {
		case b, ok := <-t.inputs:
			if !ok {
				t.eof = true
				continue
			}
			t.pending = append(t.pending, b...)
		default:
			return t.consume(len(t.pending))
		}
	}
	return t.consume(len(t.pending))
}

// Close closes the underlying stream and stops the reader.
func (t *streamTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.closeErr = t.rwc.Close()
		t.trace.ConnectionClosed(t.target, t.closeErr)
	})
	return t.closeErr
}

// Removes the first n bytes of pending input and delivers them.
func (t *streamTransport) consume(n int) []byte {
	if n == 0 {
		return []byte{}
	}
	output := make([]byte, n)
	copy(output, t.pending[:n])
	t.pending = t.pending[n:]
	if len(t.pending) == 0 {
		t.pending = nil
	}
	return output
}

func (t *streamTransport) readError() error {
	select {
	case <-t.done:
		return newConnectionError("read", t.target, ErrSessionClosed)
	default:
	}
	err := t.readErr
	if err == nil {
		err = io.EOF
	}
	return newConnectionError("read", t.target, err)
}

func (t *streamTransport) launchReader() {
	go func() {
		defer close(t.inputs)
		for {
			buf := make([]byte, readBufferLength)
			c, err := t.rwc.Read(buf)
			if c > 0 {
				select {
				case t.inputs <- buf[:c]:
				case <-t.done:
					return
				}
			}
			if err != nil {
				t.readErr = err
				return
			}
		}
	}()
}

func resolveTransportConfig(cfg *TransportConfig) TransportConfig {
	resolvedConfig := TransportConfig{}
	if cfg != nil {
		resolvedConfig = *cfg
	}
	// The trace is completed separately, mergo would otherwise merge into the caller's hooks.
	trace := resolvedConfig.Trace
	if trace == nil {
		trace = DefaultTransportConfig.Trace
	}
	resolvedConfig.Trace = nil
	_ = mergo.Merge(&resolvedConfig, DefaultTransportConfig)
	resolvedConfig.Trace = completeTrace(trace)
	return resolvedConfig
}

// Delivers a copy of trace with any undefined hooks replaced by no-op hooks.
func completeTrace(trace *ClientTrace) *ClientTrace {
	resolved := ClientTrace{}
	if trace != nil {
		resolved = *trace
	}
	_ = mergo.Merge(&resolved, NoOpLoggingHooks)
	return &resolved
}
