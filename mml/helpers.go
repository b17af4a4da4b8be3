package mml

import (
	"context"

	"github.com/pkg/errors"
)

// SendCommandGetResultCount sends the command and returns the number of results reported by the network element.
// ok is false when the command succeeded but the response had no result count section.
// A valid non-zero return code is treated as a response with no results.
// A response without a return code is reported as an error matching ErrProtocolTimeout.
func SendCommandGetResultCount(ctx context.Context, s Session, cmd string) (count int, ok bool, err error) {
	output, err := s.SendCommand(ctx, cmd)
	if err != nil {
		return 0, false, err
	}

	resp, err := ParseResponse(output)
	if err != nil {
		return 0, false, errors.Wrapf(err, "command %q", cmd)
	}

	switch resp.ReturnCode {
	case Success:
		return resp.Count, resp.HasCount, nil
	case NoReturnCode:
		return 0, false, errors.Wrapf(ErrProtocolTimeout, "command %q", cmd)
	default:
		return 0, true, nil
	}
}

// SendCommandReturnRaw sends the command and returns the decoded response if the command succeeded.
// A non-zero return code is reported as a *DeviceError, a missing one as an error matching ErrProtocolTimeout.
func SendCommandReturnRaw(ctx context.Context, s Session, cmd string, opts ...SendOption) (string, error) {
	output, err := s.SendCommand(ctx, cmd, opts...)
	if err != nil {
		return "", err
	}

	resp, err := ParseResponse(output)
	if err != nil {
		return "", errors.Wrapf(err, "command %q", cmd)
	}

	switch resp.ReturnCode {
	case Success:
		return resp.Text, nil
	case NoReturnCode:
		return "", errors.Wrapf(ErrProtocolTimeout, "command %q", cmd)
	default:
		return "", &DeviceError{Command: cmd, Code: resp.ReturnCode}
	}
}
