package relay

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Frame is the best-effort decoding of one relayed read. Stratum messages are
// newline-delimited JSON, so each non-empty line is decoded on its own.
type Frame struct {
	Messages []any
	// Malformed is set when any line, or the whole frame, is not JSON. A
	// frame split across reads is reported malformed too.
	Malformed bool
}

// Inspect decodes b. It never fails; undecodable input is flagged instead.
func Inspect(b []byte) Frame {
	var f Frame
	for line := range bytes.SplitSeq(b, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			f.Malformed = true
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			f.Malformed = true
			continue
		}
		f.Messages = append(f.Messages, v)
	}
	if len(f.Messages) == 0 {
		f.Malformed = true
	}
	return f
}

// Pretty renders the decoded messages indented, one after another.
func (f Frame) Pretty() string {
	var sb strings.Builder
	for i, m := range f.Messages {
		if i > 0 {
			sb.WriteByte('\n')
		}
		b, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			continue
		}
		sb.Write(b)
	}
	return sb.String()
}
