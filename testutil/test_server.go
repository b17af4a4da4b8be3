package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/ssh"
)

// SSHServer represents a test SSH Server exposing an MML command line through an interactive shell.
type SSHServer struct {
	listener net.Listener
	recorder *recorder
}

// NewSSHServer delivers a new test SSH Server.
// The server implements password authentication with the given credentials, and answers each command line
// received on a shell channel with the output of the responder.
func NewSSHServer(t *testing.T, uname, password string, responder Responder) *SSHServer {
	listener, err := net.Listen("tcp", "localhost:0")
	assert.NoError(t, err, "Listen failed")

	ts := &SSHServer{listener: listener, recorder: &recorder{}}
	go ts.acceptConnections(t, newSSHServerConfig(t, uname, password), responder)
	return ts
}

// Port delivers the tcp port number on which the server is listening.
func (ts *SSHServer) Port() int {
	return ts.listener.Addr().(*net.TCPAddr).Port
}

// Address delivers the host:port address on which the server is listening.
func (ts *SSHServer) Address() string {
	return fmt.Sprintf("localhost:%d", ts.Port())
}

// Commands delivers the command lines received by the server, in order.
func (ts *SSHServer) Commands() []string {
	return ts.recorder.commands()
}

// Close closes any resources used by the server.
func (ts *SSHServer) Close() {
	// nolint: gosec, errcheck
	ts.listener.Close()
}

func (ts *SSHServer) acceptConnections(t *testing.T, config *ssh.ServerConfig, responder Responder) {
	for {
		nConn, err := ts.listener.Accept()
		if err != nil {
			return
		}
		go ts.serveConnection(t, nConn, config, responder)
	}
}

func (ts *SSHServer) serveConnection(t *testing.T, nConn net.Conn, config *ssh.ServerConfig, responder Responder) {
	_, chch, reqch, err := ssh.NewServerConn(nConn, config)
	if err != nil {
		return
	}

	go ssh.DiscardRequests(reqch)

	// Service the incoming Channel channel.
	for newChannel := range chch {
		dataChan, requests, err := newChannel.Accept()
		assert.NoError(t, err, "Failed to accept new channel")

		// Accept the pty and shell requests.
		go func(in <-chan *ssh.Request) {
			for req := range in {
				// nolint: errcheck
				req.Reply(req.Type == "pty-req" || req.Type == "shell", nil)
			}
		}(requests)

		go serveCommands(dataChan, ts.recorder, responder)
	}
}

func newSSHServerConfig(t *testing.T, uname, password string) *ssh.ServerConfig {
	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == uname && string(pass) == password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}

	config.AddHostKey(generateHostKey(t))
	return config
}

func generateHostKey(t *testing.T) (hostkey ssh.Signer) {
	reader := rand.Reader
	bitSize := 2048
	var err error
	var key *rsa.PrivateKey
	if key, err = rsa.GenerateKey(reader, bitSize); err == nil {
		privateBytes := encodePrivateKeyToPEM(key)
		if hostkey, err = ssh.ParsePrivateKey(privateBytes); err == nil {
			return
		}
	}
	t.Error("Failed to generate host key", err)
	return
}

func encodePrivateKeyToPEM(privateKey *rsa.PrivateKey) []byte {
	privBlock := pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	}
	return pem.EncodeToMemory(&privBlock)
}
