// Package mml implements a client for the plain-text MML command protocol spoken by telecom core network elements.
//
// A Session is established over a Transport, typically plain TCP, and authenticates with a scripted sequence of
// pre-login commands. Each command is terminated by CRLF, and each response is a block of text that ends with
// DefaultEndString and carries a "RETCODE = n" line. Responses are classified by ParseReturnCode and
// ParseResultCount, and the helpers SendCommandGetResultCount and SendCommandReturnRaw combine a command exchange
// with that classification.
//
//	s, err := mml.NewFactory().NewSession(ctx, "10.0.0.1:6000",
//		mml.Credentials("admin", "secret"),
//		mml.PreLoginCommands(mml.MustParseCommands(`LGI:OP="{user}",PWD="{password}";`)...),
//		mml.PostLoginCommands(mml.MustParseCommands(`LGO:OP="{user}";`)...))
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//	if err = s.Login(ctx, "MSC01", ""); err != nil {
//		return err
//	}
//	count, ok, err := mml.SendCommandGetResultCount(ctx, s, "LST SUB:;")
//
// Failures are reported as a *ConnectionError, an error matching ErrProtocolTimeout or a *DeviceError.
// Sessions are not safe for concurrent use.
package mml
