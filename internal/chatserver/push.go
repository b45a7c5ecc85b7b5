package chatserver

import (
	"strconv"

	"chatserver/internal/protocol"
)

// pushTo delivers a PUSH frame to userID's live connection, if any, and
// if that connection is actually reachable. Best-effort per spec.md
// §4.10 — a miss here never surfaces as an error to the caller.
func (s *Server) pushTo(userID int64, subject, payload string) {
	connHandle, ok := s.sessions.GetConnection(userID)
	if !ok {
		return
	}
	if connHandle.Push(protocol.FormatPush(subject, payload)) {
		s.metrics.Push(subject)
	}
}

// pushPM delivers a PM push to recipientID if they are actively
// chatting with senderID (spec.md §4.10).
func (s *Server) pushPM(senderUsername string, recipientID int64, senderID int64, payload string, msgID int64, ts int64) {
	if !s.sessions.IsChattingWith(recipientID, senderID) {
		return
	}
	body := protocol.KV(
		protocol.Pair("from", senderUsername),
		protocol.Pair("content", payload),
		protocol.Pair("msg_id", strconv.FormatInt(msgID, 10)),
		protocol.Pair("ts", strconv.FormatInt(ts, 10)),
	)
	s.pushTo(recipientID, protocol.SubjectPM, body)
}

// pushGM fans a GM push out to every member of groupID, except the
// sender, who is currently focused on that group's chat mode.
func (s *Server) pushGM(senderUsername string, groupID int64, senderID int64, payload string, msgID int64, ts int64) {
	members, err := s.groups.Members(groupID)
	if err != nil {
		return
	}
	body := protocol.KV(
		protocol.Pair("from", senderUsername),
		protocol.Pair("group_id", strconv.FormatInt(groupID, 10)),
		protocol.Pair("content", payload),
		protocol.Pair("msg_id", strconv.FormatInt(msgID, 10)),
		protocol.Pair("ts", strconv.FormatInt(ts, 10)),
	)
	for _, username := range members {
		memberID, ok := s.accounts.UserID(username)
		if !ok || memberID == senderID {
			continue
		}
		if !s.sessions.IsChattingInGroup(memberID, groupID) {
			continue
		}
		s.pushTo(memberID, protocol.SubjectGM, body)
	}
}

// pushGMJoin notifies every member currently focused on groupID's chat
// mode that addedUsername just joined (spec.md §4.10), except the
// newly added member themselves.
func (s *Server) pushGMJoin(groupID int64, addedUsername string) {
	members, err := s.groups.Members(groupID)
	if err != nil {
		return
	}
	body := protocol.KV(protocol.Pair("user", addedUsername), protocol.Pair("group_id", strconv.FormatInt(groupID, 10)))
	for _, username := range members {
		if username == addedUsername {
			continue
		}
		memberID, ok := s.accounts.UserID(username)
		if !ok || !s.sessions.IsChattingInGroup(memberID, groupID) {
			continue
		}
		s.pushTo(memberID, protocol.SubjectGMJoin, body)
	}
}

// pushGMLeave notifies every member currently in groupID's chat mode
// that departedUsername is gone, whether by leave, removal, or kick.
func (s *Server) pushGMLeave(groupID int64, departedUsername string) {
	members, err := s.groups.Members(groupID)
	if err != nil {
		return
	}
	body := protocol.KV(protocol.Pair("user", departedUsername), protocol.Pair("group_id", strconv.FormatInt(groupID, 10)))
	for _, username := range members {
		memberID, ok := s.accounts.UserID(username)
		if !ok || !s.sessions.IsChattingInGroup(memberID, groupID) {
			continue
		}
		s.pushTo(memberID, protocol.SubjectGMLeave, body)
	}
}

// pushGMKicked notifies removedID directly, if they were focused on
// groupID's chat mode at the moment of removal (spec.md §4.10;
// GROUP_REMOVE only).
func (s *Server) pushGMKicked(removedID, groupID int64) {
	if !s.sessions.IsChattingInGroup(removedID, groupID) {
		return
	}
	s.pushTo(removedID, protocol.SubjectGMKicked, protocol.Pair("group_id", strconv.FormatInt(groupID, 10)))
}
