package mml

import (
	"log"
	"time"
)

// ClientTrace defines a structure for handling trace events.
type ClientTrace struct {
	// ConnectStart is called before establishing a connection to a network element.
	ConnectStart func(target string)

	// ConnectDone is called when the connection attempt completes, with err indicating
	// whether it was successful.
	ConnectDone func(target string, err error, d time.Duration)

	// ConnectionClosed is called after the transport has been closed, with err indicating any error condition.
	ConnectionClosed func(target string, err error)

	// WriteDone is called after a write to the underlying transport.
	WriteDone func(output []byte, c int, err error)

	// ReadDone is called after a read until delimiter has completed or timed out.
	ReadDone func(input []byte, delim []byte, err error, d time.Duration)

	// StaleDiscarded is called when unconsumed input is drained ahead of a new command.
	StaleDiscarded func(input []byte)

	// CommandDone is called after a command/response exchange.
	CommandDone func(id, ne, cmd string, output []byte, err error, d time.Duration)

	// LoginDone is called when a login script completes.
	LoginDone func(id, ne string, err error)

	// LogoutDone is called when a logout script completes.
	LogoutDone func(id, ne string, err error)

	// Error is called after an error condition has been detected.
	Error func(location, ne string, err error)
}

// DefaultLoggingHooks provides a default logging hook to report errors.
var DefaultLoggingHooks = &ClientTrace{
	Error: func(location, ne string, err error) {
		log.Printf("Error context:%s ne:%s err:%v\n", location, ne, err)
	},
}

// DiagnosticLoggingHooks provides a set of default diagnostic hooks.
var DiagnosticLoggingHooks = &ClientTrace{
	ConnectStart: func(target string) {
		log.Printf("ConnectStart target:%s\n", target)
	},
	ConnectDone: func(target string, err error, d time.Duration) {
		log.Printf("ConnectDone target:%s err:%v took:%s\n", target, err, d)
	},
	ConnectionClosed: func(target string, err error) {
		log.Printf("ConnectionClosed target:%s err:%v\n", target, err)
	},
	WriteDone: func(output []byte, c int, err error) {
		log.Printf("WriteDone len:%d err:%v\n", c, err)
	},
	ReadDone: func(input []byte, delim []byte, err error, d time.Duration) {
		log.Printf("ReadDone len:%d delim:%q err:%v took:%s\n", len(input), delim, err, d)
	},
	StaleDiscarded: func(input []byte) {
		log.Printf("StaleDiscarded len:%d\n", len(input))
	},
	CommandDone: func(id, ne, cmd string, output []byte, err error, d time.Duration) {
		log.Printf("CommandDone session:%s ne:%s cmd:%q err:%v took:%s\n%s", id, ne, cmd, err, d, output)
	},
	LoginDone: func(id, ne string, err error) {
		log.Printf("LoginDone session:%s ne:%s err:%v\n", id, ne, err)
	},
	LogoutDone: func(id, ne string, err error) {
		log.Printf("LogoutDone session:%s ne:%s err:%v\n", id, ne, err)
	},
	Error: func(location, ne string, err error) {
		log.Printf("Error context:%s ne:%s err:%v\n", location, ne, err)
	},
}

// NoOpLoggingHooks provides set of hooks that do nothing.
var NoOpLoggingHooks = &ClientTrace{
	ConnectStart:     func(target string) {},
	ConnectDone:      func(target string, err error, d time.Duration) {},
	ConnectionClosed: func(target string, err error) {},
	WriteDone:        func(output []byte, c int, err error) {},
	ReadDone:         func(input []byte, delim []byte, err error, d time.Duration) {},
	StaleDiscarded:   func(input []byte) {},
	CommandDone:      func(id, ne, cmd string, output []byte, err error, d time.Duration) {},
	LoginDone:        func(id, ne string, err error) {},
	LogoutDone:       func(id, ne string, err error) {},
	Error:            func(location, ne string, err error) {},
}
