// Package wire serves the JSON action protocol used by the desktop client.
//
// A connection carries a stream of request objects
//
//	{"action": "book_venue", "data": {"slot_id": 12}}
//
// each answered by one reply object
//
//	{"status": "success" | "fail" | "error", "message": "...", "data": ...}
//
// "fail" is a business refusal the user can act on, "error" a malformed
// request or a server-side failure.  A connection is anonymous until a
// successful login or register binds it to an account.
package wire

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/iliyamo/court-booking/internal/booking"
	"github.com/iliyamo/court-booking/internal/cache"
	"github.com/iliyamo/court-booking/internal/repository"
)

const (
	StatusSuccess = "success"
	StatusFail    = "fail"
	StatusError   = "error"
)

// Request is one client message.
type Request struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Reply is the answer to one Request.
type Reply struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Server accepts action connections.  At most MaxConns connections are
// served at once; further clients wait in the listen backlog until a slot
// frees up.
type Server struct {
	Service     *booking.Service
	Views       *repository.ProjectionRepo
	Slots       *cache.Availability
	MaxConns    int64
	IdleTimeout time.Duration

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// Serve accepts connections on ln until ctx is cancelled, then closes the
// listener and every open connection and waits for their handlers.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	max := s.MaxConns
	if max < 1 {
		max = 1
	}
	sem := semaphore.NewWeighted(max)

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer s.closeAll()

	log.Printf("wire: listening on %s (max %d connections)", ln.Addr(), max)
	for {
		// The slot is taken before Accept so a saturated server stops
		// accepting instead of piling up idle goroutines.
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		conn, err := ln.Accept()
		if err != nil {
			sem.Release(1)
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer sem.Release(1)
			defer s.track(conn, false)
			s.ServeConn(ctx, conn)
		}()
	}
}

func (s *Server) track(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		s.conns = make(map[net.Conn]struct{})
	}
	if add {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// ServeConn answers requests on conn until the peer hangs up, the idle
// timeout passes or the stream stops being valid JSON.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	sess := &session{}
	peer := conn.RemoteAddr()

	for {
		if s.IdleTimeout > 0 {
			_ = conn.SetDeadline(time.Now().Add(s.IdleTimeout))
		}
		var req Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrDeadlineExceeded) {
				return
			}
			var syn *json.SyntaxError
			var typ *json.UnmarshalTypeError
			if errors.As(err, &syn) || errors.As(err, &typ) {
				_ = enc.Encode(Reply{Status: StatusError, Message: "invalid JSON"})
			}
			return
		}
		reply := s.dispatch(ctx, sess, req)
		if err := enc.Encode(reply); err != nil {
			log.Printf("wire: write to %v: %v", peer, err)
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, sess *session, req Request) Reply {
	h, ok := actions[req.Action]
	if !ok {
		return Reply{Status: StatusError, Message: "unknown action: " + req.Action}
	}
	if h.auth && sess.account == "" {
		return Reply{Status: StatusError, Message: "login required"}
	}
	msg, data, err := h.fn(s, ctx, sess, req.Data)
	if err != nil {
		return failure(req.Action, err)
	}
	return Reply{Status: StatusSuccess, Message: msg, Data: data}
}

func failure(action string, err error) Reply {
	var d *booking.DenialError
	if errors.As(err, &d) {
		return Reply{Status: StatusFail, Message: d.Message}
	}
	var v *booking.ValidationError
	if errors.As(err, &v) {
		return Reply{Status: StatusError, Message: v.Error()}
	}
	log.Printf("wire: %s: %v", action, err)
	return Reply{Status: StatusError, Message: "internal server error"}
}
