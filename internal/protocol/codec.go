// Package protocol implements the hand-rolled line protocol: framing
// (see framer.go), and the request/response/push grammar (spec.md §4.2,
// §6.1).
package protocol

import (
	"errors"
	"strconv"
	"strings"
)

// MaxTokenLen bounds VERB and REQ_ID, per spec.md §4.2.
const MaxTokenLen = 31

// ErrMalformed is returned when a request line has no parseable
// VERB/REQ_ID pair. Per spec.md §4.2 the server still answers with
// ERR 0 400 bad_request rather than dropping the connection.
var ErrMalformed = errors.New("protocol: malformed request")

// Push subjects (spec.md §6.1).
const (
	SubjectPM       = "PM"
	SubjectJoin     = "JOIN"
	SubjectLeave    = "LEAVE"
	SubjectGM       = "GM"
	SubjectGMJoin   = "GM_JOIN"
	SubjectGMLeave  = "GM_LEAVE"
	SubjectGMKicked = "GM_KICKED"
)

// Request is a parsed client line: VERB SP REQ_ID SP PAYLOAD.
type Request struct {
	Verb    string
	ReqID   string
	Payload string
}

// ParseRequest parses a single logical line (CRLF already stripped).
// Trailing spaces on the line are tolerated; the payload is the text
// after the second space with leading and trailing spaces removed. The
// verb is upper-cased.
func ParseRequest(line string) (Request, error) {
	line = strings.TrimRight(line, " ")
	verb, rest, hasRest := strings.Cut(line, " ")
	verb = strings.TrimSpace(verb)
	if verb == "" || len(verb) > MaxTokenLen {
		return Request{}, ErrMalformed
	}
	if !hasRest {
		return Request{}, ErrMalformed
	}
	reqID, payload, _ := strings.Cut(rest, " ")
	reqID = strings.TrimSpace(reqID)
	if reqID == "" || len(reqID) > MaxTokenLen {
		return Request{}, ErrMalformed
	}
	return Request{Verb: strings.ToUpper(verb), ReqID: reqID, Payload: strings.TrimLeft(payload, " ")}, nil
}

// Args is a parsed flat sequence of key=value tokens. Key lookup
// returns the first match; a duplicate key later in the payload is
// ignored (spec.md §4.2).
type Args map[string]string

// ParseArgs splits payload on single spaces and extracts key=value
// pairs. A token with no '=' is ignored rather than treated as an
// error, matching the "unknown keys return not found" contract: a
// stray token simply never matches a Get.
func ParseArgs(payload string) Args {
	args := make(Args)
	if payload == "" {
		return args
	}
	for _, tok := range strings.Split(payload, " ") {
		if tok == "" {
			continue
		}
		key, val, ok := strings.Cut(tok, "=")
		if !ok || key == "" {
			continue
		}
		if _, exists := args[key]; exists {
			continue
		}
		args[key] = val
	}
	return args
}

// Get returns the value for key, or ("", false) if absent.
func (a Args) Get(key string) (string, bool) {
	v, ok := a[key]
	return v, ok
}

// Require returns the values for keys, keyed by name, and true; it
// returns nil and false when any of keys is absent or empty, which
// callers answer with a missing_fields response.
func (a Args) Require(keys ...string) (map[string]string, bool) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, ok := a[k]
		if !ok || v == "" {
			return nil, false
		}
		out[k] = v
	}
	return out, true
}

// ---------------------------------------------------------------------
// Response formatting
// ---------------------------------------------------------------------

// Pair renders a single key=value token for building response payloads.
func Pair(key, value string) string { return key + "=" + value }

// KV joins already-rendered key=value tokens with single spaces.
func KV(pairs ...string) string { return strings.Join(pairs, " ") }

// FormatOK renders an OK response line, CRLF included.
func FormatOK(reqID, payload string) string {
	if payload == "" {
		return "OK " + reqID + "\r\n"
	}
	return "OK " + reqID + " " + payload + "\r\n"
}

// FormatErr renders an ERR response line, CRLF included. status is the
// numeric CODE field; slug is the MESSAGE field (spec.md §4.2's grammar
// names these CODE and MESSAGE; the vocabulary in §6.1 lists them as
// the "<status> <slug>" pairs this renders).
func FormatErr(reqID string, status int, slug string) string {
	return "ERR " + reqID + " " + strconv.Itoa(status) + " " + slug + "\r\n"
}

// FormatPush renders a server-initiated push frame, CRLF included.
func FormatPush(subject, payload string) string {
	return "PUSH " + subject + " " + payload + "\r\n"
}
