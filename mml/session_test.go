package mml

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/damianoneill/mml/mml/mocks"
	"github.com/golang/mock/gomock"

	assert "github.com/stretchr/testify/require"
)

const (
	okResponse   = "RETCODE = 0  Operation succeeded\r\n\r\n---    END\r\n"
	failResponse = "RETCODE = 5  Operation failed\r\n\r\n---    END\r\n"
	noRetcode    = "+++    HLR\r\n"
)

var errReset = errors.New("connection reset by peer")

func newTestSession(t *testing.T, opts ...SessionOption) (*sessionImpl, *mocks.MockTransport, *gomock.Controller) {
	mockCtrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(mockCtrl)
	opts = append([]SessionOption{LoggingHooks(NoOpLoggingHooks)}, opts...)
	return NewSession(tr, opts...).(*sessionImpl), tr, mockCtrl
}

// Defines the transport calls for a command exchange using the default end string.
func expectExchange(tr *mocks.MockTransport, cmd, response string, readErr error) []*gomock.Call {
	return []*gomock.Call{
		tr.EXPECT().Drain().Return(nil),
		tr.EXPECT().Write([]byte(cmd+"\r\n")).Return(len(cmd)+2, nil),
		tr.EXPECT().ReadUntil([]byte(DefaultEndString), 12*time.Second).Return([]byte(response), readErr),
	}
}

func inOrder(exchanges ...[]*gomock.Call) {
	var calls []*gomock.Call
	for _, e := range exchanges {
		calls = append(calls, e...)
	}
	gomock.InOrder(calls...)
}

func TestLoginSuccess(t *testing.T) {
	s, tr, mockCtrl := newTestSession(t,
		PreLoginCommands(MustParseCommands("LGI:OP=\"admin\";", "REG NE:NAME=\"{network_element}\";", "SET:A=1;")...))
	defer mockCtrl.Finish()

	inOrder(
		expectExchange(tr, "LGI:OP=\"admin\";", okResponse, nil),
		expectExchange(tr, "REG NE:NAME=\"MSC01\";", okResponse, nil),
		expectExchange(tr, "SET:A=1;", okResponse, nil),
	)

	assert.Equal(t, StateUnauthenticated, s.State())
	err := s.Login(context.Background(), "MSC01", "")
	assert.NoError(t, err)
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Equal(t, "MSC01", s.NetworkElement())
}

func TestLoginWithoutScript(t *testing.T) {
	s, _, mockCtrl := newTestSession(t)
	defer mockCtrl.Finish()

	assert.NoError(t, s.Login(context.Background(), "MSC01", ""))
	assert.Equal(t, StateAuthenticated, s.State())
}

func TestLoginInterpolation(t *testing.T) {
	s, tr, mockCtrl := newTestSession(t,
		Credentials("admin", "secret"),
		PreLoginCommands(MustParseCommands(
			`LGI:OP="{user}",PWD="{password}";`,
			`REG NE:NAME="{network_element}",SUB="{sub_network_element}";`)...))
	defer mockCtrl.Finish()

	inOrder(
		expectExchange(tr, `LGI:OP="admin",PWD="secret";`, okResponse, nil),
		expectExchange(tr, `REG NE:NAME="USN01",SUB="SLOT3";`, okResponse, nil),
	)

	assert.NoError(t, s.Login(context.Background(), "USN01", "SLOT3"))
}

func TestLoginDeviceErrorStopsScript(t *testing.T) {
	s, tr, mockCtrl := newTestSession(t, PreLoginCommands(MustParseCommands("A;", "B;", "C;")...))
	defer mockCtrl.Finish()

	// Any attempt to send C; fails the test as an unexpected call.
	inOrder(
		expectExchange(tr, "A;", okResponse, nil),
		expectExchange(tr, "B;", failResponse, nil),
		[]*gomock.Call{tr.EXPECT().Close().Return(nil)},
	)

	err := s.Login(context.Background(), "MSC01", "")
	assert.True(t, IsDeviceError(err), "Expecting device error, got %v", err)
	var de *DeviceError
	assert.True(t, errors.As(err, &de))
	assert.Equal(t, ReturnCode(5), de.Code)
	assert.Equal(t, "B;", de.Command)
	assert.False(t, IsConnectionError(err))
	assert.False(t, IsProtocolTimeout(err))
	assert.Equal(t, StateFailed, s.State())
}

func TestLoginIndeterminateReturnCode(t *testing.T) {
	s, tr, mockCtrl := newTestSession(t, PreLoginCommands(MustParseCommands("A;", "B;", "C;")...))
	defer mockCtrl.Finish()

	inOrder(
		expectExchange(tr, "A;", okResponse, nil),
		expectExchange(tr, "B;", noRetcode, nil),
	)

	err := s.Login(context.Background(), "MSC01", "")
	assert.True(t, IsProtocolTimeout(err), "Expecting protocol timeout, got %v", err)
	assert.False(t, IsDeviceError(err))
	assert.False(t, IsConnectionError(err))
	assert.Equal(t, StateUnauthenticated, s.State(), "Transport should remain open")
}

func TestLoginTransportError(t *testing.T) {
	s, tr, mockCtrl := newTestSession(t, PreLoginCommands(MustParseCommands("A;", "B;")...))
	defer mockCtrl.Finish()

	inOrder(
		expectExchange(tr, "A;", "", errReset),
		[]*gomock.Call{tr.EXPECT().Close().Return(nil)},
	)

	err := s.Login(context.Background(), "MSC01", "")
	assert.True(t, IsConnectionError(err), "Expecting connection error, got %v", err)
	assert.ErrorIs(t, err, errReset)
	assert.Equal(t, StateFailed, s.State())

	// The session is unusable afterwards.
	err = s.Login(context.Background(), "MSC01", "")
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.SendCommand(context.Background(), "LST ME:;")
	assert.True(t, IsConnectionError(err))
}

func TestLoginInvalidEncoding(t *testing.T) {
	s, tr, mockCtrl := newTestSession(t, PreLoginCommands(MustParseCommands("A;")...))
	defer mockCtrl.Finish()

	inOrder(expectExchange(tr, "A;", "RETCODE = 0\r\n\xff END\r\n", nil))

	err := s.Login(context.Background(), "MSC01", "")
	assert.ErrorIs(t, err, ErrInvalidEncoding)
	assert.Equal(t, StateUnauthenticated, s.State())
}

func TestLogout(t *testing.T) {
	s, tr, mockCtrl := newTestSession(t,
		Credentials("admin", "secret"),
		PostLoginCommands(MustParseCommands(`UNREG NE:NAME="{network_element}";`, `LGO:OP="{user}";`)...))
	defer mockCtrl.Finish()
	s.ne = "MSC01"
	s.state = StateAuthenticated

	// Return codes are not checked on logout.
	inOrder(
		expectExchange(tr, `UNREG NE:NAME="MSC01";`, failResponse, nil),
		expectExchange(tr, `LGO:OP="admin";`, noRetcode, nil),
		[]*gomock.Call{tr.EXPECT().Close().Return(nil)},
	)

	assert.NoError(t, s.Logout(context.Background()))
	assert.Equal(t, StateClosed, s.State())

	// A second logout does nothing.
	assert.NoError(t, s.Logout(context.Background()))
	assert.Equal(t, StateClosed, s.State())
}

func TestLogoutTransportErrorStillCloses(t *testing.T) {
	s, tr, mockCtrl := newTestSession(t, PostLoginCommands(MustParseCommands("A;", "B;")...))
	defer mockCtrl.Finish()
	s.state = StateAuthenticated

	inOrder(expectExchange(tr, "A;", "", errReset))
	tr.EXPECT().Close().Return(nil).MinTimes(1)

	err := s.Logout(context.Background())
	assert.True(t, IsConnectionError(err), "Expecting connection error, got %v", err)
	assert.Equal(t, StateFailed, s.State())
	assert.NoError(t, s.Logout(context.Background()))
}

func TestSendCommand(t *testing.T) {
	s, tr, mockCtrl := newTestSession(t)
	defer mockCtrl.Finish()

	inOrder(expectExchange(tr, "LST ME:;", okResponse, nil))

	output, err := s.SendCommand(context.Background(), "LST ME:;")
	assert.NoError(t, err)
	assert.Equal(t, okResponse, string(output))
}

func TestSendCommandTimeoutIsNotAnError(t *testing.T) {
	s, tr, mockCtrl := newTestSession(t)
	defer mockCtrl.Finish()

	inOrder(expectExchange(tr, "LST ME:;", "", nil))

	output, err := s.SendCommand(context.Background(), "LST ME:;")
	assert.NoError(t, err)
	assert.Empty(t, output)
	assert.Equal(t, StateUnauthenticated, s.State())
}

func TestSendCommandWaitFor(t *testing.T) {
	s, tr, mockCtrl := newTestSession(t, DrainTimeout(time.Second))
	defer mockCtrl.Finish()

	page := "RETCODE = 0\r\nrow 1\r\nTo be continued...\r\n"
	gomock.InOrder(
		tr.EXPECT().Drain().Return(nil),
		tr.EXPECT().Write([]byte("LST SUB:;\r\n")).Return(11, nil),
		tr.EXPECT().ReadUntil([]byte("To be continued..."), 12*time.Second).Return([]byte(page), nil),
		// The outcome of reading up to the final sentinel is ignored.
		tr.EXPECT().ReadUntil([]byte(DefaultEndString), time.Second).Return(nil, errReset),
	)

	output, err := s.SendCommand(context.Background(), "LST SUB:;", WaitFor("To be continued..."), NoDelay())
	assert.NoError(t, err)
	assert.Equal(t, page, string(output))
}

func TestSendCommandWriteError(t *testing.T) {
	s, tr, mockCtrl := newTestSession(t)
	defer mockCtrl.Finish()

	gomock.InOrder(
		tr.EXPECT().Drain().Return(nil),
		tr.EXPECT().Write(gomock.Any()).Return(0, io.ErrClosedPipe),
		tr.EXPECT().Close().Return(nil),
	)

	_, err := s.SendCommand(context.Background(), "LST ME:;")
	assert.True(t, IsConnectionError(err))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.Equal(t, StateFailed, s.State())
}

func TestSendCommandInvalidEncoding(t *testing.T) {
	s, _, mockCtrl := newTestSession(t)
	defer mockCtrl.Finish()

	_, err := s.SendCommand(context.Background(), "LST SUB:NAME=\"café\";")
	assert.ErrorIs(t, err, ErrInvalidEncoding)
	assert.Equal(t, StateUnauthenticated, s.State())
}

func TestSendCommandCancelledContext(t *testing.T) {
	s, _, mockCtrl := newTestSession(t)
	defer mockCtrl.Finish()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.SendCommand(ctx, "LST ME:;")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSendCommandDelay(t *testing.T) {
	s, tr, mockCtrl := newTestSession(t, InterCommandDelay(50*time.Millisecond))
	defer mockCtrl.Finish()
	inOrder(expectExchange(tr, "A;", okResponse, nil))

	begin := time.Now()
	_, err := s.SendCommand(context.Background(), "A;")
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(begin), 50*time.Millisecond)
}

func TestSendCommandNoDelay(t *testing.T) {
	s, tr, mockCtrl := newTestSession(t, InterCommandDelay(time.Hour))
	defer mockCtrl.Finish()
	inOrder(expectExchange(tr, "B;", okResponse, nil))

	begin := time.Now()
	_, err := s.SendCommand(context.Background(), "B;", NoDelay())
	assert.NoError(t, err)
	assert.Less(t, time.Since(begin), time.Minute, "Inter command delay should be skipped")
}

func TestSendCommandDiscardsStaleInput(t *testing.T) {
	var stale []byte
	s, tr, mockCtrl := newTestSession(t, LoggingHooks(&ClientTrace{
		StaleDiscarded: func(input []byte) { stale = input },
	}))
	defer mockCtrl.Finish()

	gomock.InOrder(
		tr.EXPECT().Drain().Return([]byte("---    END\r\n")),
		tr.EXPECT().Write([]byte("A;\r\n")).Return(4, nil),
		tr.EXPECT().ReadUntil([]byte(DefaultEndString), 12*time.Second).Return([]byte(okResponse), nil),
	)

	_, err := s.SendCommand(context.Background(), "A;")
	assert.NoError(t, err)
	assert.Equal(t, "---    END\r\n", string(stale))
}

func TestSendCommandAfterClose(t *testing.T) {
	s, tr, mockCtrl := newTestSession(t)
	defer mockCtrl.Finish()

	tr.EXPECT().Close().Return(nil).Times(2)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())

	_, err := s.SendCommand(context.Background(), "LST ME:;")
	assert.True(t, IsConnectionError(err))
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.NoError(t, s.Logout(context.Background()))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Authenticated", StateAuthenticated.String())
	assert.Equal(t, "Failed", StateFailed.String())
	assert.Equal(t, "Unknown", State(42).String())
}
