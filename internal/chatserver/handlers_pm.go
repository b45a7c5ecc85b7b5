package chatserver

import (
	"strconv"
	"time"

	"chatserver/internal/apperr"
	"chatserver/internal/protocol"
)

var errPMUserNotFound = apperr.New(apperr.KindNotFound, 404, "user_not_found", "user not found")

func parseLimit(args protocol.Args) int {
	raw, ok := args.Get("limit")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func orEmpty(list string) string {
	if list == "" {
		return "empty"
	}
	return list
}

func handlePMChatStart(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	fields, ok := args.Require("with")
	if !ok {
		return "", errMissingFields
	}
	with := fields["with"]
	otherID, ok := s.accounts.UserID(with)
	if !ok {
		return "", errPMUserNotFound
	}

	s.sessions.SetChatPartner(userID, otherID)
	if err := s.pms.MarkRead(userID, with); err != nil {
		return "", err
	}
	history, err := s.pms.History(userID, with, 0)
	if err != nil {
		return "", err
	}
	me, _ := s.accounts.Username(userID)

	return protocol.KV(
		protocol.Pair("with", with),
		protocol.Pair("me", me),
		protocol.Pair("history", orEmpty(history)),
	), nil
}

func handlePMChatEnd(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	partnerID := s.sessions.GetChatPartner(userID)
	if partnerID != 0 {
		if partnerUsername, ok := s.accounts.Username(partnerID); ok {
			_ = s.pms.MarkRead(userID, partnerUsername)
		}
	}
	s.sessions.SetChatPartner(userID, 0)
	return protocol.Pair("status", "chat_ended"), nil
}

func handlePMSend(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	fields, ok := args.Require("to", "content")
	if !ok {
		return "", errMissingFields
	}
	to, content := fields["to"], fields["content"]

	msgID, err := s.pms.Send(userID, to, content)
	if err != nil {
		return "", err
	}
	s.metrics.PMSent()

	senderUsername, _ := s.accounts.Username(userID)
	if recipientID, ok := s.accounts.UserID(to); ok {
		s.pushPM(senderUsername, recipientID, userID, content, msgID, time.Now().Unix())
	}

	return protocol.KV(
		protocol.Pair("msg_id", strconv.FormatInt(msgID, 10)),
		protocol.Pair("to", to),
		protocol.Pair("status", "sent"),
	), nil
}

func handlePMHistory(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	fields, ok := args.Require("with")
	if !ok {
		return "", errMissingFields
	}
	with := fields["with"]
	history, err := s.pms.History(userID, with, parseLimit(args))
	if err != nil {
		return "", err
	}
	return protocol.KV(protocol.Pair("with", with), protocol.Pair("messages", orEmpty(history))), nil
}

func handlePMConversations(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	list, err := s.pms.Conversations(userID)
	if err != nil {
		return "", err
	}
	return protocol.Pair("conversations", orEmpty(list)), nil
}
