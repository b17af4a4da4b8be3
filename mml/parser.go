package mml

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ReturnCode is the status reported by a network element on the RETCODE line of a response.
type ReturnCode int

const (
	// NoReturnCode indicates that the response did not include a RETCODE line.
	NoReturnCode ReturnCode = -1

	// Success is the return code of a successfully executed command.
	Success ReturnCode = 0
)

const (
	retcodeMarker   = "RETCODE = "
	resultsMarker   = "Number of results = "
	noResultsMarker = "No matching result is found"
)

// Response is a classified MML response.
type Response struct {
	// Text is the decoded response, including any trailing sentinel.
	Text       string
	ReturnCode ReturnCode
	// Count is the number of results reported by the response; only meaningful when HasCount is true.
	Count    int
	HasCount bool
}

// ParseResponse decodes the raw response and extracts its return code and result count.
func ParseResponse(raw []byte) (*Response, error) {
	text, err := decode(raw)
	if err != nil {
		return nil, err
	}
	lines := splitLines(text)
	code, err := returnCode(lines)
	if err != nil {
		return nil, err
	}
	count, ok, err := resultCount(lines)
	if err != nil {
		return nil, err
	}
	return &Response{Text: text, ReturnCode: code, Count: count, HasCount: ok}, nil
}

// ParseReturnCode returns the value of the last RETCODE line in the response.
// Multi-page responses repeat the header block, the final occurrence reflects the status of the command.
// NoReturnCode is returned if no RETCODE line is present.
func ParseReturnCode(raw []byte) (ReturnCode, error) {
	text, err := decode(raw)
	if err != nil {
		return NoReturnCode, err
	}
	return returnCode(splitLines(text))
}

// ParseResultCount returns the number of results reported by the response.
// ok is false when the response has no result count section, or when the first one carries no number.
func ParseResultCount(raw []byte) (count int, ok bool, err error) {
	text, err := decode(raw)
	if err != nil {
		return 0, false, err
	}
	return resultCount(splitLines(text))
}

func returnCode(lines []string) (ReturnCode, error) {
	code := NoReturnCode
	for _, line := range lines {
		idx := strings.Index(line, retcodeMarker)
		if idx < 0 {
			continue
		}
		digits := leadingDigits(line[idx+len(retcodeMarker):])
		if digits == "" {
			code = NoReturnCode
			continue
		}
		v, err := strconv.Atoi(digits)
		if err != nil {
			return NoReturnCode, errors.Wrap(err, "invalid RETCODE")
		}
		code = ReturnCode(v)
	}
	return code, nil
}

func resultCount(lines []string) (int, bool, error) {
	for _, line := range lines {
		if idx := strings.Index(line, resultsMarker); idx >= 0 {
			digits := leadingDigits(line[idx+len(resultsMarker):])
			if digits == "" {
				return 0, false, nil
			}
			v, err := strconv.Atoi(digits)
			if err != nil {
				return 0, false, errors.Wrap(err, "invalid result count")
			}
			return v, true, nil
		}
		if strings.Contains(line, noResultsMarker) {
			return 0, true, nil
		}
	}
	return 0, false, nil
}

// Returns the first run of decimal digits in s, ignoring anything before it.
func leadingDigits(s string) string {
	start := strings.IndexFunc(s, isDigit)
	if start < 0 {
		return ""
	}
	end := start
	for end < len(s) && isDigit(rune(s[end])) {
		end++
	}
	return s[start:end]
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func decode(raw []byte) (string, error) {
	for i, b := range raw {
		if b >= 0x80 {
			return "", errors.Wrapf(ErrInvalidEncoding, "byte 0x%02x at offset %d", b, i)
		}
	}
	return string(raw), nil
}

// Lines may be terminated by CRLF, LF or a bare CR.
func splitLines(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' })
}
