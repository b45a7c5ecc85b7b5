// Package chatserver wires the account, session, friend, group, pm, and
// gm stores to the line protocol: accepting connections, framing
// requests, routing verbs to handlers, and delivering PUSH frames
// (spec.md §4.9, §4.10).
package chatserver

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"chatserver/internal/account"
	"chatserver/internal/applog"
	"chatserver/internal/friend"
	"chatserver/internal/gm"
	"chatserver/internal/group"
	"chatserver/internal/metrics"
	"chatserver/internal/pm"
	"chatserver/internal/session"
)

// ListenBacklog matches spec.md §6.2's fixed listen backlog (informational —
// the standard library's net.Listen does not expose a backlog knob; the
// kernel default governs).
const ListenBacklog = 64

// Server owns every store plus the accept loop. One instance serves
// one data directory and one TCP listener.
type Server struct {
	listener net.Listener

	accounts *account.Store
	sessions *session.Registry
	friends  *friend.Store
	groups   *group.Store
	pms      *pm.Store
	gms      *gm.Store

	log          *logrus.Entry
	activity     *logrus.Logger
	activityFile *os.File
	metrics      *metrics.Metrics

	connID atomic.Uint64
}

// Options configures a new Server.
type Options struct {
	DataDir        string
	SessionTimeout time.Duration
	Logger         *logrus.Logger
	Registerer     prometheus.Registerer
}

// New creates the data dir layout (spec.md §6.3), loads every store
// from it, and returns a Server ready for Serve.
func New(opts Options) (*Server, error) {
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("chatserver: create data dir: %w", err)
	}

	accounts, err := account.New(filepath.Join(opts.DataDir, "users.db"))
	if err != nil {
		return nil, fmt.Errorf("chatserver: open account store: %w", err)
	}

	sessions := session.New(opts.SessionTimeout)
	friends := friend.New(filepath.Join(opts.DataDir, "friends.db"), accounts, sessions)

	groups, err := group.New(
		filepath.Join(opts.DataDir, "groups.db"),
		filepath.Join(opts.DataDir, "group_members.db"),
		filepath.Join(opts.DataDir, "groups.counter"),
		accounts,
	)
	if err != nil {
		return nil, fmt.Errorf("chatserver: open group store: %w", err)
	}

	pms, err := pm.New(filepath.Join(opts.DataDir, "pm"), accounts)
	if err != nil {
		return nil, fmt.Errorf("chatserver: open pm store: %w", err)
	}
	gms, err := gm.New(filepath.Join(opts.DataDir, "gm"), filepath.Join(opts.DataDir, "gm.counter"), accounts, groups)
	if err != nil {
		return nil, fmt.Errorf("chatserver: open gm store: %w", err)
	}

	logBase := opts.Logger
	if logBase == nil {
		logBase = applog.New(nil)
	}
	activityFile, err := os.OpenFile(filepath.Join(opts.DataDir, "server.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("chatserver: open server.log: %w", err)
	}
	activityLog := applog.NewActivity(activityFile)

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Server{
		accounts:     accounts,
		sessions:     sessions,
		friends:      friends,
		groups:       groups,
		pms:          pms,
		gms:          gms,
		log:          applog.Component(logBase, "chatserver"),
		activity:     activityLog,
		activityFile: activityFile,
		metrics:      metrics.New(reg),
	}, nil
}

// Serve accepts connections on addr (host:port) until Shutdown closes
// the listener.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.log.WithField("addr", addr).Info("listening")
	s.activity.Info("server started")

	for {
		nc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.WithField("err", err).Warn("accept failed")
			continue
		}
		go s.serveConn(nc)
	}
}

// Shutdown closes the listener, causing Serve to return, and flushes
// the activity log.
func (s *Server) Shutdown() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.activity.Info("server stopped")
	if s.activityFile != nil {
		s.activityFile.Close()
	}
}

func (s *Server) serveConn(nc net.Conn) {
	id := s.connID.Add(1)
	c := newConn(id, nc)
	s.metrics.ConnOpened()

	go c.writePump()
	defer func() {
		s.sessions.RemoveByConnection(id)
		c.close()
		nc.Close()
		s.metrics.ConnClosed()
	}()

	s.readLoop(c)
}
