package relay

import (
	"strings"
	"testing"

	"gotest.tools/assert"
)

func TestInspect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        string
		messages  int
		malformed bool
	}{
		{name: "single", in: `{"id":1,"method":"mining.subscribe"}` + "\n", messages: 1},
		{name: "no_newline", in: `{"id":1,"result":true}`, messages: 1},
		{name: "batched", in: `{"id":1}` + "\n" + `{"id":2}` + "\n", messages: 2},
		{name: "crlf", in: `{"id":1}` + "\r\n", messages: 1},
		{name: "garbage", in: "not json\n", malformed: true},
		{name: "split", in: `{"id":1,"meth`, malformed: true},
		{name: "partly_valid", in: `{"id":1}` + "\n" + `{"id"`, messages: 1, malformed: true},
		{name: "blank", in: "\n\n", malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Inspect([]byte(tt.in))
			assert.Equal(t, len(f.Messages), tt.messages)
			assert.Equal(t, f.Malformed, tt.malformed)
		})
	}
}

func TestInspectPretty(t *testing.T) {
	t.Parallel()

	f := Inspect([]byte(`{"id":1,"params":["rig1","x"]}` + "\n" + `{"id":2}`))
	out := f.Pretty()
	assert.Assert(t, strings.Contains(out, `"params": [`), out)
	assert.Assert(t, strings.Contains(out, `"id": 2`), out)
}

func TestInspectKeepsLargeNumbers(t *testing.T) {
	t.Parallel()

	f := Inspect([]byte(`{"id":18446744073709551615}`))
	assert.Assert(t, strings.Contains(f.Pretty(), "18446744073709551615"))
}
