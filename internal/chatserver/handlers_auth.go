package chatserver

import (
	"strconv"

	"chatserver/internal/apperr"
	"chatserver/internal/protocol"
)

func handlePing(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	return protocol.Pair("pong", "1"), nil
}

func handleRegister(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	fields, ok := args.Require("username", "password", "email")
	if !ok {
		return "", errMissingFields
	}
	id, err := s.accounts.Register(fields["username"], fields["password"], fields["email"])
	if err != nil {
		return "", err
	}
	s.activity.WithField("username", fields["username"]).Info("user registered")
	return protocol.Pair("user_id", strconv.FormatInt(id, 10)), nil
}

func handleLogin(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	fields, ok := args.Require("username", "password")
	if !ok {
		return "", errMissingFields
	}
	id, err := s.accounts.Authenticate(fields["username"], fields["password"])
	if err != nil {
		return "", err
	}
	token, err := s.sessions.Create(id, c)
	if err != nil {
		return "", err
	}
	s.activity.WithField("username", fields["username"]).Info("user logged in")
	return protocol.KV(
		protocol.Pair("token", token),
		protocol.Pair("user_id", strconv.FormatInt(id, 10)),
	), nil
}

func handleLogout(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	token, ok := args.Get("token")
	if !ok || token == "" {
		return "", errMissingFields
	}
	if err := s.sessions.Destroy(token); err != nil {
		return "", err
	}
	return protocol.Pair("ok", "1"), nil
}

func handleWhoami(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	return protocol.Pair("user_id", strconv.FormatInt(userID, 10)), nil
}

func handleDisconnect(s *Server, c *conn, userID int64, args protocol.Args) (string, error) {
	if token, ok := args.Get("token"); ok && token != "" {
		if err := s.sessions.Destroy(token); err != nil && !apperr.Is(err, apperr.KindAuth) {
			return "", err
		}
	}
	return protocol.Pair("ok", "1"), nil
}
