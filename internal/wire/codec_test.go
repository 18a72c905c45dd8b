package wire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestOpen(t *testing.T) {
	type scenario struct {
		name     string
		line     string
		expected Open
	}

	scenarios := []scenario{
		{
			name: "full fields",
			line: `open path='/tmp/hello' args='a b c' env='FOO="bar" BAZ=qux'`,
			expected: Open{
				Path: "/tmp/hello",
				Args: []string{"a", "b", "c"},
				Env:  map[string]string{"FOO": "bar", "BAZ": "qux"},
			},
		},
		{
			name: "empty args and env are equivalent to absent",
			line: `open path='/tmp/hello' args='' env=''`,
			expected: Open{
				Path: "/tmp/hello",
				Args: nil,
				Env:  map[string]string{},
			},
		},
		{
			name: "fields in any order",
			line: `open env='A=1' path='/bin/true' args='--flag'`,
			expected: Open{
				Path: "/bin/true",
				Args: []string{"--flag"},
				Env:  map[string]string{"A": "1"},
			},
		},
		{
			name: "quoted args with spaces",
			line: `open path='/bin/echo' args='"hello world" plain'`,
			expected: Open{
				Path: "/bin/echo",
				Args: []string{"hello world", "plain"},
				Env:  map[string]string{},
			},
		},
	}

	for _, s := range scenarios {
		t.Run(s.name, func(t *testing.T) {
			req, err := ParseRequest(s.line)
			require.NoError(t, err)
			open, ok := req.(Open)
			require.True(t, ok)
			assert.Equal(t, s.expected.Path, open.Path)
			assert.Equal(t, s.expected.Args, open.Args)
			assert.Equal(t, s.expected.Env, open.Env)
		})
	}
}

func TestParseRequestOpenMissingPath(t *testing.T) {
	_, err := ParseRequest(`open args='a b' env=''`)
	assert.True(t, errors.Is(err, ErrMissingPath))
}

func TestParseRequestKill(t *testing.T) {
	req, err := ParseRequest("kill")
	require.NoError(t, err)
	assert.Equal(t, Kill{}, req)
}

func TestParseRequestUnknownKind(t *testing.T) {
	_, err := ParseRequest("frobnicate something")
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestParseResponse(t *testing.T) {
	type scenario struct {
		name     string
		line     string
		expected Response
	}

	scenarios := []scenario{
		{"okay", "okay", Okay{}},
		{"log with newline", "log hi\n", Log{Msg: "hi\n"}},
		{"exit positive", "exit 0", Exit{Code: 0}},
		{"exit negative (signal termination)", "exit -9", Exit{Code: -9}},
		{"error", "error no process was running", Error{Msg: "no process was running"}},
	}

	for _, s := range scenarios {
		t.Run(s.name, func(t *testing.T) {
			resp, err := ParseResponse(s.line)
			require.NoError(t, err)
			assert.Equal(t, s.expected, resp)
		})
	}
}

func TestSerializeOpenAlwaysEmitsAllFields(t *testing.T) {
	line := SerializeRequest(Open{Path: "/bin/true"})
	assert.Contains(t, line, "path='/bin/true'")
	assert.Contains(t, line, "args=''")
	assert.Contains(t, line, "env=''")
}

func TestRoundTripRequests(t *testing.T) {
	reqs := []Request{
		Open{Path: "/bin/echo", Args: []string{"hi"}, Env: map[string]string{"A": "1"}},
		Open{Path: "/bin/true", Env: map[string]string{}},
		Kill{},
	}

	for _, req := range reqs {
		line := SerializeRequest(req)
		parsed, err := ParseRequest(line)
		require.NoError(t, err)
		assert.Equal(t, req, parsed)
	}
}

func TestRoundTripResponses(t *testing.T) {
	resps := []Response{
		Okay{},
		Log{Msg: "a line\n"},
		Exit{Code: 0},
		Exit{Code: -9},
		Error{Msg: "boom"},
	}

	for _, resp := range resps {
		line := SerializeResponse(resp)
		parsed, err := ParseResponse(line)
		require.NoError(t, err)
		assert.Equal(t, resp, parsed)
	}
}
