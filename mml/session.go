package mml

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DefaultEndString terminates every MML response block.
const DefaultEndString = " END\r\n"

const lineTerminator = "\r\n"

// Session defines the API exposed by an MML client session.
// A Session is not safe for concurrent use; independent sessions may be used in parallel.
type Session interface {
	// Login executes the pre-login script against the network element.
	// A *ConnectionError is returned if the transport fails, an error matching ErrProtocolTimeout if a response
	// carries no return code, and a *DeviceError if a command is rejected. The script stops at the first failure.
	Login(ctx context.Context, networkElement, subNetworkElement string) error

	// Logout executes the post-login script and closes the transport.
	// Return codes are not checked, only transport failures are reported.
	Logout(ctx context.Context) error

	// SendCommand writes the command to the network element and returns the raw response.
	// The behaviour can be modified by opts - see SendOption variants below.
	SendCommand(ctx context.Context, cmd string, opts ...SendOption) ([]byte, error)

	// State returns the current authentication state of the session.
	State() State

	// NetworkElement returns the name of the network element bound by the last Login.
	NetworkElement() string

	io.Closer
}

// State defines the authentication state of a session.
type State int

const (
	StateUnauthenticated State = iota
	StateLoggingIn
	StateAuthenticated
	StateLoggingOut
	StateClosed
	// StateFailed is entered on a transport failure, or when a login command is rejected.
	StateFailed
)

var stateNames = map[State]string{
	StateUnauthenticated: "Unauthenticated",
	StateLoggingIn:       "LoggingIn",
	StateAuthenticated:   "Authenticated",
	StateLoggingOut:      "LoggingOut",
	StateClosed:          "Closed",
	StateFailed:          "Failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// SendOption implements options for configuring SendCommand behaviour.
type SendOption func(*SendConfig)

// WaitFor defines the string that indicates the end of the response to the command.
// Defaults to DefaultEndString. When a different end string is used, for example to capture a single page of
// a multi-page response, the remainder of the response up to DefaultEndString is read and discarded.
func WaitFor(endString string) SendOption {
	return func(c *SendConfig) {
		c.endString = endString
	}
}

// NoDelay suppresses the inter-command delay that by default follows the exchange.
func NoDelay() SendOption {
	return func(c *SendConfig) {
		c.noDelay = true
	}
}

// SendConfig defines properties controlling SendCommand behaviour.
type SendConfig struct {
	endString string
	noDelay   bool
}

type sessionImpl struct {
	id     string
	target string
	cfg    *sessionConfig
	tport  Transport
	state  State
	// Bound by Login.
	ne    string
	subNE string
}

// NewSession delivers an unauthenticated session over an established transport.
// The session takes ownership of the transport.
func NewSession(t Transport, opts ...SessionOption) Session {
	config := defaultConfig
	for _, opt := range opts {
		opt(&config)
	}
	config.trace = completeTrace(config.trace)
	return newSession(t, "", &config)
}

func newSession(t Transport, target string, cfg *sessionConfig) *sessionImpl {
	return &sessionImpl{id: uuid.New().String(), target: target, cfg: cfg, tport: t, state: StateUnauthenticated}
}

func (s *sessionImpl) Login(ctx context.Context, networkElement, subNetworkElement string) (err error) {
	defer func() {
		s.cfg.trace.LoginDone(s.id, networkElement, err)
	}()

	if !s.usable() {
		return newConnectionError("login", s.target, ErrSessionClosed)
	}

	s.state = StateLoggingIn
	s.ne, s.subNE = networkElement, subNetworkElement
	bindings := s.bindings()

	var (
		output []byte
		code   ReturnCode
	)
	for _, cmd := range s.cfg.preLogin {
		output, err = s.exchange(ctx, cmd.Resolve(bindings), cmd.String(), &SendConfig{endString: DefaultEndString})
		if err != nil {
			s.abandonLogin()
			return errors.Wrapf(err, "login to %s", networkElement)
		}

		code, err = ParseReturnCode(output)
		if err != nil {
			s.abandonLogin()
			return errors.Wrapf(err, "login to %s", networkElement)
		}

		switch {
		case code == NoReturnCode:
			s.abandonLogin()
			return errors.Wrapf(ErrProtocolTimeout, "login to %s, command %q", networkElement, cmd)
		case code != Success:
			// Nothing further can be sent without being logged in.
			s.state = StateFailed
			_ = s.tport.Close()
			return errors.Wrapf(&DeviceError{Command: cmd.String(), Code: code}, "login to %s", networkElement)
		}
	}

	s.state = StateAuthenticated
	return nil
}

func (s *sessionImpl) Logout(ctx context.Context) (err error) {
	if !s.usable() {
		return nil
	}

	defer func() {
		s.cfg.trace.LogoutDone(s.id, s.ne, err)
	}()

	s.state = StateLoggingOut
	defer func() {
		_ = s.tport.Close()
		if s.state != StateFailed {
			s.state = StateClosed
		}
	}()

	bindings := s.bindings()
	for _, cmd := range s.cfg.postLogin {
		_, err = s.exchange(ctx, cmd.Resolve(bindings), cmd.String(), &SendConfig{endString: DefaultEndString})
		if err != nil {
			return errors.Wrapf(err, "logout from %s", s.ne)
		}
	}
	return nil
}

func (s *sessionImpl) SendCommand(ctx context.Context, cmd string, opts ...SendOption) ([]byte, error) {
	config := &SendConfig{endString: DefaultEndString}
	for _, opt := range opts {
		opt(config)
	}
	if config.endString == "" {
		config.endString = DefaultEndString
	}
	return s.exchange(ctx, cmd, cmd, config)
}

func (s *sessionImpl) State() State {
	return s.state
}

func (s *sessionImpl) NetworkElement() string {
	return s.ne
}

func (s *sessionImpl) Close() error {
	err := s.tport.Close()
	if s.state != StateFailed {
		s.state = StateClosed
	}
	return err
}

// Executes a single command/response exchange.
// label identifies the command in trace output, scripted commands are reported unresolved so that credentials
// are not logged.
func (s *sessionImpl) exchange(ctx context.Context, cmd, label string, sc *SendConfig) (output []byte, err error) {
	defer func(begin time.Time) {
		s.cfg.trace.CommandDone(s.id, s.ne, label, output, err, time.Since(begin))
	}(time.Now())

	if !s.usable() {
		return nil, newConnectionError("send", s.target, ErrSessionClosed)
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}
	if _, err = decode([]byte(cmd)); err != nil {
		return nil, errors.Wrapf(err, "command %q", label)
	}

	// Discard the remains of any earlier response that was not fully read.
	if stale := s.tport.Drain(); len(stale) > 0 {
		s.cfg.trace.StaleDiscarded(stale)
	}

	if _, err = s.tport.Write([]byte(cmd + lineTerminator)); err != nil {
		return nil, s.fail("write", err)
	}

	output, err = s.tport.ReadUntil([]byte(sc.endString), s.cfg.commandTimeout)
	if err != nil {
		return nil, s.fail("read", err)
	}

	// Pages end with an intermediate marker but the response always closes with the default sentinel,
	// which must be consumed before the next command. The outcome of this read is ignored.
	if sc.endString != DefaultEndString {
		_, _ = s.tport.ReadUntil([]byte(DefaultEndString), s.cfg.drainTimeout)
	}

	if !sc.noDelay {
		_ = wait(ctx, s.cfg.interCommandDelay)
	}
	return output, nil
}

// Transport failures are terminal for the session.
func (s *sessionImpl) fail(location string, err error) error {
	err = newConnectionError(location, s.target, err)
	s.state = StateFailed
	_ = s.tport.Close()
	s.cfg.trace.Error(location, s.ne, err)
	return err
}

// A login that did not fail terminally leaves the transport open for another attempt.
func (s *sessionImpl) abandonLogin() {
	if s.state == StateLoggingIn {
		s.state = StateUnauthenticated
	}
}

func (s *sessionImpl) usable() bool {
	return s.state != StateClosed && s.state != StateFailed
}

func (s *sessionImpl) bindings() Bindings {
	return Bindings{
		NetworkElement:    s.ne,
		SubNetworkElement: s.subNE,
		User:              s.cfg.user,
		Password:          s.cfg.password,
	}
}

// Blocks for the duration d, returning early if the context is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
