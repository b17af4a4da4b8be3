package mml

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// Some network elements only expose the MML command line through an interactive SSH shell.

type sshStream struct {
	client  *ssh.Client
	session *ssh.Session
	io.Reader
	io.WriteCloser
}

// NewSSHTransport connects to the target using the ssh configuration, and delivers a transport over an
// interactive shell.
func NewSSHTransport(ctx context.Context, sshcfg *ssh.ClientConfig, target string, cfg *TransportConfig) (t Transport, err error) {
	resolvedConfig := resolveTransportConfig(cfg)
	trace := resolvedConfig.Trace

	trace.ConnectStart(target)
	defer func(begin time.Time) {
		trace.ConnectDone(target, err, time.Since(begin))
	}(time.Now())

	s := &sshStream{}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	dialer := &net.Dialer{Timeout: resolvedConfig.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, newConnectionError("dial", target, err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, target, sshcfg)
	if err != nil {
		_ = conn.Close()
		return nil, newConnectionError("ssh handshake", target, err)
	}
	s.client = ssh.NewClient(c, chans, reqs)

	if s.session, err = s.client.NewSession(); err != nil {
		return nil, newConnectionError("new ssh session", target, err)
	}

	if s.Reader, err = s.session.StdoutPipe(); err != nil {
		return nil, errors.Wrap(err, "stdout pipe failed")
	}
	if s.WriteCloser, err = s.session.StdinPipe(); err != nil {
		return nil, errors.Wrap(err, "stdin pipe failed")
	}

	terminalMode := ssh.TerminalModes{
		ssh.ECHO: 0,
	}
	if err = s.session.RequestPty("dumb", 80, 200, terminalMode); err != nil {
		return nil, errors.Wrap(err, "request pty failed")
	}

	if err = s.session.Shell(); err != nil {
		return nil, errors.Wrap(err, "login shell failed")
	}

	return newStreamTransport(target, s, trace), nil
}

// Close closes all session resources in the following order:
//
//  1. stdin pipe
//  2. SSH session
//  3. SSH client
//
// Errors are returned with priority matching the same order.
func (s *sshStream) Close() (err error) {
	var (
		writeCloseErr      error
		sshSessionCloseErr error
	)

	if s.WriteCloser != nil {
		writeCloseErr = s.WriteCloser.Close()
	}

	if s.session != nil {
		sshSessionCloseErr = s.session.Close()
	}

	if s.client != nil {
		err = s.client.Close()
	}

	if err == nil {
		err = writeCloseErr
	}

	if err == nil {
		err = sshSessionCloseErr
	}

	return err
}
