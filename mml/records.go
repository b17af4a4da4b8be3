package mml

import (
	"context"
	"fmt"
	"strings"

	"github.com/netxops/gotextfsm"
	"github.com/pkg/errors"
)

// Record is a row extracted from a response by a TextFSM template, keyed by template value name.
type Record map[string]string

// RecordTemplate is a compiled TextFSM template used to extract records from list responses.
type RecordTemplate struct {
	fsm gotextfsm.TextFSM
}

// NewRecordTemplate compiles a TextFSM template.
func NewRecordTemplate(template string) (*RecordTemplate, error) {
	fsm := gotextfsm.TextFSM{}
	if err := fsm.ParseString(template); err != nil {
		return nil, errors.Wrap(err, "failed to parse TextFSM template")
	}
	return &RecordTemplate{fsm: fsm}, nil
}

// Fields returns the value names declared by the template.
func (rt *RecordTemplate) Fields() []string {
	fields := make([]string, 0, len(rt.fsm.Values))
	for name := range rt.fsm.Values {
		fields = append(fields, name)
	}
	return fields
}

// Extract runs the template over the response text and returns the records in order of appearance.
func (rt *RecordTemplate) Extract(text string) ([]Record, error) {
	parser := gotextfsm.ParserOutput{}
	if err := parser.ParseTextString(strings.ReplaceAll(text, "\r\n", "\n"), rt.fsm, true); err != nil {
		return nil, errors.Wrap(err, "failed to extract records")
	}

	records := make([]Record, 0, len(parser.Dict))
	for _, row := range parser.Dict {
		record := make(Record, len(row))
		for key, value := range row {
			if str, ok := value.(string); ok {
				record[key] = str
			} else {
				record[key] = fmt.Sprintf("%v", value)
			}
		}
		records = append(records, record)
	}
	return records, nil
}

// SendCommandGetRecords sends the command and extracts records from a successful response.
// Return code handling follows SendCommandReturnRaw.
func SendCommandGetRecords(ctx context.Context, s Session, cmd string, rt *RecordTemplate) ([]Record, error) {
	text, err := SendCommandReturnRaw(ctx, s, cmd)
	if err != nil {
		return nil, err
	}
	records, err := rt.Extract(text)
	if err != nil {
		return nil, errors.Wrapf(err, "command %q", cmd)
	}
	return records, nil
}
