package chatserver

import (
	"strconv"

	"chatserver/internal/apperr"
	"chatserver/internal/protocol"
)

var errInvalidGroupID = apperr.New(apperr.KindValidation, 400, "invalid_group_id", "group_id must be numeric")

func parseGroupID(args protocol.Args) (int64, error) {
	raw, ok := args.Get("group_id")
	if !ok || raw == "" {
		return 0, errMissingFields
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errInvalidGroupID
	}
	return id, nil
}

func handleGroupCreate(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	fields, ok := args.Require("name")
	if !ok {
		return "", errMissingFields
	}
	name := fields["name"]
	groupID, err := s.groups.Create(userID, name)
	if err != nil {
		return "", err
	}
	return protocol.KV(protocol.Pair("group_id", strconv.FormatInt(groupID, 10)), protocol.Pair("name", name)), nil
}

func handleGroupList(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	list, err := s.groups.List(userID)
	if err != nil {
		return "", err
	}
	return protocol.Pair("groups", list), nil
}

func handleGroupMembers(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	groupID, err := parseGroupID(args)
	if err != nil {
		return "", err
	}
	list, err := s.groups.ListMembers(userID, groupID)
	if err != nil {
		return "", err
	}
	return protocol.Pair("members", list), nil
}

func handleGroupAdd(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	groupID, err := parseGroupID(args)
	if err != nil {
		return "", err
	}
	fields, ok := args.Require("username")
	if !ok {
		return "", errMissingFields
	}
	username := fields["username"]
	if err := s.groups.AddMember(userID, groupID, username); err != nil {
		return "", err
	}
	s.pushGMJoin(groupID, username)
	return protocol.KV(
		protocol.Pair("group_id", strconv.FormatInt(groupID, 10)),
		protocol.Pair("username", username),
		protocol.Pair("status", "added"),
	), nil
}

func handleGroupRemove(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	groupID, err := parseGroupID(args)
	if err != nil {
		return "", err
	}
	fields, ok := args.Require("username")
	if !ok {
		return "", errMissingFields
	}
	username := fields["username"]
	removedID, _ := s.accounts.UserID(username)

	if err := s.groups.RemoveMember(userID, groupID, username); err != nil {
		return "", err
	}
	s.pushGMLeave(groupID, username)
	if removedID != 0 {
		s.pushGMKicked(removedID, groupID)
	}
	return protocol.KV(
		protocol.Pair("group_id", strconv.FormatInt(groupID, 10)),
		protocol.Pair("username", username),
		protocol.Pair("status", "removed"),
	), nil
}

func handleGroupLeave(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	groupID, err := parseGroupID(args)
	if err != nil {
		return "", err
	}
	username, _ := s.accounts.Username(userID)
	if err := s.groups.Leave(userID, groupID); err != nil {
		return "", err
	}
	s.pushGMLeave(groupID, username)
	return protocol.KV(protocol.Pair("group_id", strconv.FormatInt(groupID, 10)), protocol.Pair("status", "left")), nil
}
