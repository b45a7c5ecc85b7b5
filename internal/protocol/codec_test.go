package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestBasic(t *testing.T) {
	req, err := ParseRequest("PM_SEND 7 to=bob content=hi")
	require.NoError(t, err)
	assert.Equal(t, "PM_SEND", req.Verb)
	assert.Equal(t, "7", req.ReqID)
	assert.Equal(t, "to=bob content=hi", req.Payload)
}

func TestParseRequestNoPayload(t *testing.T) {
	req, err := ParseRequest("PING 1")
	require.NoError(t, err)
	assert.Equal(t, "PING", req.Verb)
	assert.Equal(t, "1", req.ReqID)
	assert.Equal(t, "", req.Payload)
}

func TestParseRequestMalformed(t *testing.T) {
	_, err := ParseRequest("PING")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseRequest("")
	assert.ErrorIs(t, err, ErrMalformed)
}

// TestParseArgsEqualsInValue covers the '='-in-value boundary ParseArgs
// relies on strings.Cut's first-'='-wins split for: a base64-ish token
// value containing '=' padding must stay intact rather than truncating
// at the padding character.
func TestParseArgsEqualsInValue(t *testing.T) {
	args := ParseArgs("content=aGk= to=bob")
	v, ok := args.Get("content")
	require.True(t, ok)
	assert.Equal(t, "aGk=", v)

	v, ok = args.Get("to")
	require.True(t, ok)
	assert.Equal(t, "bob", v)
}

func TestParseArgsDuplicateKeyFirstWins(t *testing.T) {
	args := ParseArgs("token=first token=second")
	v, ok := args.Get("token")
	require.True(t, ok)
	assert.Equal(t, "first", v)
}

func TestParseArgsStrayTokenIgnored(t *testing.T) {
	args := ParseArgs("bare token=val")
	_, ok := args.Get("bare")
	assert.False(t, ok)
	v, ok := args.Get("token")
	require.True(t, ok)
	assert.Equal(t, "val", v)
}

func TestArgsRequire(t *testing.T) {
	args := ParseArgs("token=abc username=bob")
	got, ok := args.Require("token", "username")
	require.True(t, ok)
	assert.Equal(t, "abc", got["token"])
	assert.Equal(t, "bob", got["username"])

	_, ok = args.Require("token", "missing")
	assert.False(t, ok)
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "OK 1 pong=1\r\n", FormatOK("1", "pong=1"))
	assert.Equal(t, "OK 1\r\n", FormatOK("1", ""))
	assert.Equal(t, "ERR 1 400 bad_request\r\n", FormatErr("1", 400, "bad_request"))
	assert.Equal(t, "PUSH PM from=alice content=hi\r\n", FormatPush(SubjectPM, KV(Pair("from", "alice"), Pair("content", "hi"))))
}
