package chatserver

import "chatserver/internal/protocol"

func handleFriendInvite(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	fields, ok := args.Require("username")
	if !ok {
		return "", errMissingFields
	}
	username := fields["username"]
	if err := s.friends.Invite(userID, username); err != nil {
		return "", err
	}
	return protocol.KV(protocol.Pair("username", username), protocol.Pair("status", "pending")), nil
}

func handleFriendAccept(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	fields, ok := args.Require("username")
	if !ok {
		return "", errMissingFields
	}
	username := fields["username"]
	if err := s.friends.Accept(userID, username); err != nil {
		return "", err
	}
	return protocol.KV(protocol.Pair("username", username), protocol.Pair("status", "accepted")), nil
}

func handleFriendReject(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	fields, ok := args.Require("username")
	if !ok {
		return "", errMissingFields
	}
	username := fields["username"]
	if err := s.friends.Reject(userID, username); err != nil {
		return "", err
	}
	return protocol.KV(protocol.Pair("username", username), protocol.Pair("status", "rejected")), nil
}

func handleFriendPending(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	list, err := s.friends.Pending(userID)
	if err != nil {
		return "", err
	}
	return protocol.Pair("username", list), nil
}

func handleFriendList(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	list, err := s.friends.List(userID)
	if err != nil {
		return "", err
	}
	return protocol.Pair("username", list), nil
}

func handleFriendDelete(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	fields, ok := args.Require("username")
	if !ok {
		return "", errMissingFields
	}
	username := fields["username"]
	if err := s.friends.Delete(userID, username); err != nil {
		return "", err
	}
	return protocol.KV(protocol.Pair("username", username), protocol.Pair("status", "deleted")), nil
}
