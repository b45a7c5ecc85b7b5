package chatserver

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServer starts a Server on a loopback port backed by a temp data
// dir and returns a dialer; shutdown is registered with t.Cleanup.
func testServer(t *testing.T) func() net.Conn {
	t.Helper()
	srv, err := New(Options{DataDir: t.TempDir(), SessionTimeout: time.Minute})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	srv.listener = ln

	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.serveConn(nc)
		}
	}()
	t.Cleanup(srv.Shutdown)

	return func() net.Conn {
		conn, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}
}

// client bundles a connection with a line reader/writer for terse
// request/response assertions below.
type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func newClient(t *testing.T, conn net.Conn) *client {
	return &client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\r\n"))
	require.NoError(c.t, err)
}

func (c *client) readLine() string {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	return line[:len(line)-2] // strip CRLF
}

// readResponse drains PUSH lines (if any arrive first) until it sees an
// OK/ERR response line, returning it.
func (c *client) readResponse() string {
	c.t.Helper()
	for {
		line := c.readLine()
		if strings.HasPrefix(line, "OK") || strings.HasPrefix(line, "ERR") {
			return line
		}
	}
}

func TestPing(t *testing.T) {
	dial := testServer(t)
	c := newClient(t, dial())

	c.send("PING 1")
	resp := c.readResponse()
	assert.Equal(t, "OK 1 pong=1", resp)
}

func TestRegisterLoginWhoami(t *testing.T) {
	dial := testServer(t)
	c := newClient(t, dial())

	c.send("REGISTER 1 username=alice password=hunter22 email=alice@example.com")
	resp := c.readResponse()
	require.Equal(t, "OK 1 user_id=1", resp)

	c.send("LOGIN 2 username=alice password=hunter22")
	resp = c.readResponse()
	require.Contains(t, resp, "OK 2")
	require.Contains(t, resp, "token=")
	token := extractToken(resp)
	require.NotEmpty(t, token)

	c.send("WHOAMI 3 token=" + token)
	resp = c.readResponse()
	assert.Equal(t, "OK 3 user_id=1", resp)
}

// registerAndLogin registers a fresh user and logs in, returning the
// session token.
func registerAndLogin(c *client, reqSeq *int, username string) string {
	*reqSeq++
	c.send("REGISTER " + strconv.Itoa(*reqSeq) + " username=" + username + " password=hunter22 email=" + username + "@example.com")
	c.readResponse()

	*reqSeq++
	c.send("LOGIN " + strconv.Itoa(*reqSeq) + " username=" + username + " password=hunter22")
	return extractToken(c.readResponse())
}

func TestLoginWrongPasswordRejected(t *testing.T) {
	dial := testServer(t)
	c := newClient(t, dial())

	c.send("REGISTER 1 username=bob password=correctpw email=bob@example.com")
	c.readResponse()

	c.send("LOGIN 2 username=bob password=wrongpw")
	resp := c.readResponse()
	assert.True(t, strings.HasPrefix(resp, "ERR"))
}

func TestFriendAndPMPushFlow(t *testing.T) {
	dial := testServer(t)
	alice := newClient(t, dial())
	bob := newClient(t, dial())

	var aliceSeq, bobSeq int
	aliceToken := registerAndLogin(alice, &aliceSeq, "alice")
	bobToken := registerAndLogin(bob, &bobSeq, "bob")

	alice.send("FRIEND_INVITE 2 token=" + aliceToken + " username=bob")
	resp := alice.readResponse()
	require.Contains(t, resp, "OK 2")

	bob.send("FRIEND_ACCEPT 2 token=" + bobToken + " username=alice")
	resp = bob.readResponse()
	require.Contains(t, resp, "OK 2")

	// Bob opens PM chat mode with alice so a push is deliverable.
	bob.send("PM_CHAT_START 3 token=" + bobToken + " with=alice")
	resp = bob.readResponse()
	require.Contains(t, resp, "OK 3")
	require.Contains(t, resp, "history=empty")

	alice.send("PM_SEND 3 token=" + aliceToken + " to=bob content=hello_bob")
	resp = alice.readResponse()
	require.Contains(t, resp, "OK 3")
	require.Contains(t, resp, "status=sent")

	push := bob.readLine()
	assert.Contains(t, push, "PUSH PM")
	assert.Contains(t, push, "from=alice")
	assert.Contains(t, push, "content=hello_bob")
}

func TestGroupCreateAddSendHistory(t *testing.T) {
	dial := testServer(t)
	alice := newClient(t, dial())
	bob := newClient(t, dial())

	var aliceSeq, bobSeq int
	aliceToken := registerAndLogin(alice, &aliceSeq, "alice")
	bobToken := registerAndLogin(bob, &bobSeq, "bob")

	alice.send("GROUP_CREATE 2 token=" + aliceToken + " name=friends")
	resp := alice.readResponse()
	require.Contains(t, resp, "OK 2")
	groupID := extractField(resp, "group_id")
	require.NotEmpty(t, groupID)

	alice.send("GROUP_ADD 3 token=" + aliceToken + " group_id=" + groupID + " username=bob")
	resp = alice.readResponse()
	require.Contains(t, resp, "OK 3")

	bob.send("GM_CHAT_START 2 token=" + bobToken + " group_id=" + groupID)
	resp = bob.readResponse()
	require.Contains(t, resp, "OK 2")
	require.Contains(t, resp, "group_name=friends")

	alice.send("GM_SEND 4 token=" + aliceToken + " group_id=" + groupID + " content=hi_group")
	resp = alice.readResponse()
	require.Contains(t, resp, "OK 4")
	require.Contains(t, resp, "status=sent")

	push := bob.readLine()
	assert.Contains(t, push, "PUSH GM")
	assert.Contains(t, push, "content=hi_group")

	bob.send("GM_HISTORY 3 token=" + bobToken + " group_id=" + groupID)
	resp = bob.readResponse()
	require.Contains(t, resp, "OK 3")
	assert.Contains(t, resp, "hi_group")
}

func TestUnknownVerbReturnsError(t *testing.T) {
	dial := testServer(t)
	c := newClient(t, dial())

	c.send("BOGUS 1")
	resp := c.readResponse()
	assert.Contains(t, resp, "ERR 1 404")
}

func TestOversizeLineClosesConnectionWithoutResponse(t *testing.T) {
	dial := testServer(t)
	conn := dial()

	_, err := conn.Write(bytes.Repeat([]byte("a"), 65537))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestAuthRequiredRejectsMissingToken(t *testing.T) {
	dial := testServer(t)
	c := newClient(t, dial())

	c.send("WHOAMI 1")
	resp := c.readResponse()
	assert.Contains(t, resp, "ERR 1 400")
}

// extractToken pulls the token=... field out of an OK response line.
func extractToken(resp string) string {
	return extractField(resp, "token")
}

func extractField(resp, key string) string {
	needle := key + "="
	idx := -1
	for i := 0; i+len(needle) <= len(resp); i++ {
		if resp[i:i+len(needle)] == needle {
			idx = i + len(needle)
			break
		}
	}
	if idx == -1 {
		return ""
	}
	end := idx
	for end < len(resp) && resp[end] != ' ' {
		end++
	}
	return resp[idx:end]
}
