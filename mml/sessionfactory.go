package mml

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/crypto/ssh"
)

// SessionFactory defines a factory method for instantiating MML sessions.
type SessionFactory interface {
	// NewSession connects to the target, a host:port address, and delivers an unauthenticated session.
	NewSession(ctx context.Context, target string, opts ...SessionOption) (Session, error)
}

// NewFactory delivers a new session factory.
func NewFactory() SessionFactory {
	return &factoryImpl{}
}

type factoryImpl struct{}

func (f *factoryImpl) NewSession(ctx context.Context, target string, opts ...SessionOption) (Session, error) {
	config := defaultConfig
	for _, opt := range opts {
		opt(&config)
	}
	config.trace = completeTrace(config.trace)

	// Spread the connection attempts of sessions that are created together.
	if config.jitter != nil {
		if err := wait(ctx, config.jitter()); err != nil {
			return nil, err
		}
	}

	t, err := newTransport(ctx, target, &config)
	if err != nil {
		config.trace.Error("Network Connection", "", err)
		return nil, err
	}

	return newSession(t, target, &config), nil
}

func newTransport(ctx context.Context, target string, c *sessionConfig) (Transport, error) {
	tcfg := &TransportConfig{ConnectTimeout: c.connectTimeout, Trace: c.trace}
	if c.sshConfig != nil {
		return NewSSHTransport(ctx, c.sshConfig, target, tcfg)
	}
	return NewTCPTransport(ctx, target, tcfg)
}

// SessionOption implements options for configuring session behaviour.
type SessionOption func(*sessionConfig)

// Credentials defines the user and password that may be referenced by scripted commands.
func Credentials(user, password string) SessionOption {
	return func(c *sessionConfig) {
		c.user = user
		c.password = password
	}
}

// InterCommandDelay defines the pause that follows each command, limiting the rate at which commands are
// sent to the network element.
// Default value is 0.
func InterCommandDelay(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.interCommandDelay = d
	}
}

// PreLoginCommands defines the script executed by Login.
func PreLoginCommands(cmds ...Command) SessionOption {
	return func(c *sessionConfig) {
		c.preLogin = cmds
	}
}

// PostLoginCommands defines the script executed by Logout.
func PostLoginCommands(cmds ...Command) SessionOption {
	return func(c *sessionConfig) {
		c.postLogin = cmds
	}
}

// CommandTimeout defines how long to wait for the end of a response.
// Default value is 12s.
func CommandTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.commandTimeout = d
	}
}

// DrainTimeout defines how long to wait for the final sentinel of a response that was read using WaitFor.
// Default value is 5s.
func DrainTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.drainTimeout = d
	}
}

// ConnectTimeout defines how long to wait for the connection to be established.
// Default value is 10s.
func ConnectTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.connectTimeout = d
	}
}

// Jitter defines the policy delivering the delay applied before connecting.
// Default value is RandomJitter(3 * time.Second).
func Jitter(policy JitterPolicy) SessionOption {
	return func(c *sessionConfig) {
		c.jitter = policy
	}
}

// LoggingHooks defines a set of logging hooks to be used by the session.
// Default value is DefaultLoggingHooks.
func LoggingHooks(trace *ClientTrace) SessionOption {
	return func(c *sessionConfig) {
		c.trace = trace
	}
}

// OverSSH connects to the network element using an SSH shell rather than plain TCP.
func OverSSH(sshcfg *ssh.ClientConfig) SessionOption {
	return func(c *sessionConfig) {
		c.sshConfig = sshcfg
	}
}

// JitterPolicy delivers the delay applied before a new session connects.
type JitterPolicy func() time.Duration

// RandomJitter delivers a policy returning a random delay between 0 and limit inclusive.
func RandomJitter(limit time.Duration) JitterPolicy {
	return func() time.Duration {
		if limit <= 0 {
			return 0
		}
		return time.Duration(rand.Int63n(int64(limit) + 1)) //nolint: gosec
	}
}

// NoJitter is a policy that connects immediately.
func NoJitter() time.Duration {
	return 0
}

// sessionConfig defines properties controlling session behaviour.
type sessionConfig struct {
	user     string
	password string
	// Pause following each command.
	interCommandDelay time.Duration
	preLogin          []Command
	postLogin         []Command
	// Bound for reading a response up to its end string.
	commandTimeout time.Duration
	// Bound for reading the final sentinel after a response read with a custom end string.
	drainTimeout   time.Duration
	connectTimeout time.Duration
	jitter         JitterPolicy
	trace          *ClientTrace
	// If defined, the session is established over SSH.
	sshConfig *ssh.ClientConfig
}

var defaultConfig = sessionConfig{
	commandTimeout: 12 * time.Second,
	drainTimeout:   5 * time.Second,
	connectTimeout: 10 * time.Second,
	jitter:         RandomJitter(3 * time.Second),
	trace:          DefaultLoggingHooks,
}
