package chatserver

import (
	"strconv"
	"time"

	"chatserver/internal/apperr"
	"chatserver/internal/protocol"
)

var errGMNotMember = apperr.New(apperr.KindPermission, 403, "not_group_member", "caller is not a member of this group")

func handleGMChatStart(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	groupID, err := parseGroupID(args)
	if err != nil {
		return "", err
	}
	username, _ := s.accounts.Username(userID)
	isMember, err := s.groups.IsMember(groupID, username)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if !isMember {
		return "", errGMNotMember
	}
	g, ok, err := s.groups.Group(groupID)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if !ok {
		return "", errGMNotMember
	}

	s.sessions.SetChatGroup(userID, groupID)
	history, err := s.gms.History(userID, groupID, 0)
	if err != nil {
		return "", err
	}

	return protocol.KV(
		protocol.Pair("group_id", strconv.FormatInt(groupID, 10)),
		protocol.Pair("group_name", g.Name),
		protocol.Pair("me", username),
		protocol.Pair("history", orEmpty(history)),
	), nil
}

func handleGMChatEnd(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	s.sessions.SetChatGroup(userID, 0)
	return protocol.Pair("status", "chat_ended"), nil
}

func handleGMSend(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	groupID, err := parseGroupID(args)
	if err != nil {
		return "", err
	}
	fields, ok := args.Require("content")
	if !ok {
		return "", errMissingFields
	}
	content := fields["content"]

	msgID, err := s.gms.Send(userID, groupID, content)
	if err != nil {
		return "", err
	}
	s.metrics.GMSent()

	senderUsername, _ := s.accounts.Username(userID)
	s.pushGM(senderUsername, groupID, userID, content, msgID, time.Now().Unix())

	return protocol.KV(protocol.Pair("msg_id", strconv.FormatInt(msgID, 10)), protocol.Pair("status", "sent")), nil
}

func handleGMHistory(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	groupID, err := parseGroupID(args)
	if err != nil {
		return "", err
	}
	history, err := s.gms.History(userID, groupID, parseLimit(args))
	if err != nil {
		return "", err
	}
	return protocol.KV(protocol.Pair("group_id", strconv.FormatInt(groupID, 10)), protocol.Pair("messages", orEmpty(history))), nil
}
