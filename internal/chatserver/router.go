package chatserver

import (
	"io"

	"chatserver/internal/apperr"
	"chatserver/internal/protocol"
)

// handlerFunc implements one verb's effect (spec.md §4.10's skeleton
// steps 3-5, minus auth which the router already resolved into
// userID). It returns the OK payload, or an *apperr.Error the router
// translates into an ERR response.
type handlerFunc func(s *Server, c *conn, userID int64, args protocol.Args) (string, error)

type verbSpec struct {
	authRequired bool
	fn           handlerFunc
	// terminate ends the worker after a successful response — only
	// DISCONNECT uses this (spec.md §4.10).
	terminate bool
}

var verbTable = map[string]verbSpec{
	"PING":     {fn: handlePing},
	"REGISTER": {fn: handleRegister},
	"LOGIN":    {fn: handleLogin},
	"LOGOUT":   {fn: handleLogout},
	"WHOAMI":   {authRequired: true, fn: handleWhoami},

	"FRIEND_INVITE":  {authRequired: true, fn: handleFriendInvite},
	"FRIEND_ACCEPT":  {authRequired: true, fn: handleFriendAccept},
	"FRIEND_REJECT":  {authRequired: true, fn: handleFriendReject},
	"FRIEND_PENDING": {authRequired: true, fn: handleFriendPending},
	"FRIEND_LIST":    {authRequired: true, fn: handleFriendList},
	"FRIEND_DELETE":  {authRequired: true, fn: handleFriendDelete},

	"GROUP_CREATE":  {authRequired: true, fn: handleGroupCreate},
	"GROUP_LIST":    {authRequired: true, fn: handleGroupList},
	"GROUP_MEMBERS": {authRequired: true, fn: handleGroupMembers},
	"GROUP_ADD":     {authRequired: true, fn: handleGroupAdd},
	"GROUP_REMOVE":  {authRequired: true, fn: handleGroupRemove},
	"GROUP_LEAVE":   {authRequired: true, fn: handleGroupLeave},

	"PM_CHAT_START":     {authRequired: true, fn: handlePMChatStart},
	"PM_CHAT_END":       {authRequired: true, fn: handlePMChatEnd},
	"PM_SEND":           {authRequired: true, fn: handlePMSend},
	"PM_HISTORY":        {authRequired: true, fn: handlePMHistory},
	"PM_CONVERSATIONS":  {authRequired: true, fn: handlePMConversations},

	"GM_CHAT_START": {authRequired: true, fn: handleGMChatStart},
	"GM_CHAT_END":   {authRequired: true, fn: handleGMChatEnd},
	"GM_SEND":       {authRequired: true, fn: handleGMSend},
	"GM_HISTORY":    {authRequired: true, fn: handleGMHistory},
}

func init() {
	verbTable["DISCONNECT"] = verbSpec{fn: handleDisconnect, terminate: true}
}

var errMissingFields = apperr.New(apperr.KindValidation, 400, "missing_fields", "required field missing")

// readLoop drives one connection's private framer, dispatching each
// complete line to handleLine until the stream ends, errors, or a
// handler asks to terminate (spec.md §4.9's state machine).
func (s *Server) readLoop(c *conn) {
	framer := protocol.NewFramer(c.nc)
	for {
		line, err := framer.ReadLine()
		if err != nil {
			if err != io.EOF {
				s.log.WithField("conn", c.id).WithField("err", err).Debug("connection read failed")
			}
			return
		}
		if s.handleLine(c, line) {
			return
		}
	}
}

// handleLine parses, authenticates, and dispatches one request line,
// writing exactly one response frame. It returns true if the worker
// should terminate after this request (DISCONNECT only).
func (s *Server) handleLine(c *conn, line string) bool {
	req, err := protocol.ParseRequest(line)
	if err != nil {
		c.writeResponse(protocol.FormatErr("0", 400, "bad_request"))
		return false
	}
	s.metrics.Request(req.Verb)

	spec, ok := verbTable[req.Verb]
	if !ok {
		s.writeErr(c, req, apperr.New(apperr.KindNotFound, 404, "unknown_command", "no such verb"))
		return false
	}

	args := protocol.ParseArgs(req.Payload)

	var userID int64
	if spec.authRequired {
		token, present := args.Get("token")
		if !present || token == "" {
			s.writeErr(c, req, errMissingFields)
			return false
		}
		uid, err := s.sessions.Validate(token)
		if err != nil {
			s.writeErr(c, req, err)
			return false
		}
		userID = uid
	}

	payload, err := spec.fn(s, c, userID, args)
	if err != nil {
		s.writeErr(c, req, err)
		return false
	}
	c.writeResponse(protocol.FormatOK(req.ReqID, payload))
	return spec.terminate
}

func (s *Server) writeErr(c *conn, req protocol.Request, err error) {
	status, slug := apperr.StatusSlug(err)
	c.writeResponse(protocol.FormatErr(req.ReqID, status, slug))
	s.metrics.Error(req.Verb, slug)
}
