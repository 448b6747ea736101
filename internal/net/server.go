package net

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"

	"skoll/internal/common"
	"skoll/internal/utils"
)

const (
	maxRecvSize     = 4 * 1024
	defaultNWorkers = 10
	readTimeout     = time.Second
	writeTimeout    = 5 * time.Second
)

var ErrImproperConversion = errors.New("improper type conversion")

// Submitter is the slice of the engine the intake shell needs.
type Submitter interface {
	SubmitOrder(userID, asset string, side common.Side, price, amount decimal.Decimal) (common.OrderAck, error)
}

// ClientSession contains relevant information pertaining to an individual
// connected TCP session. The reader is only ever touched by the one worker
// currently holding the session.
type ClientSession struct {
	conn   net.Conn
	reader *bufio.Reader
}

// Server is the thin intake shell: it reads line-delimited JSON order
// intents off TCP sessions, feeds them to the engine, and broadcasts the
// engine's events back to every connected session.
type Server struct {
	address string
	port    int
	engine  Submitter
	pool    utils.WorkerPool
	cancel  context.CancelFunc

	sessions     map[string]*ClientSession
	sessionsLock sync.Mutex
}

func New(address string, port, workers int, engine Submitter) *Server {
	if workers <= 0 {
		workers = defaultNWorkers
	}
	return &Server{
		address:  address,
		port:     port,
		engine:   engine,
		pool:     utils.NewWorkerPool(workers),
		sessions: make(map[string]*ClientSession),
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	s.cancel()
}

func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	// Setup a cancel on the context for future shutdown.
	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}

	// Unblock Accept when the context ends.
	t.Go(func() error {
		<-ctx.Done()
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
		return nil
	})

	// Start the worker pool reading off sessions.
	s.pool.Setup(t, s.handleSession)

	log.Info().Str("address", s.address).Int("port", s.port).Msg("server running")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Msg("error accepting client")
				continue
			}

			log.Info().
				Str("address", conn.RemoteAddr().String()).
				Msg("new client added")
			session := s.addSession(conn)

			// Pass over the session to be read from.
			s.pool.AddTask(session)
		}
	}
}

// ReportTrade broadcasts a trade execution to every connected session.
func (s *Server) ReportTrade(trade common.Trade) error {
	frame, err := encodeTrade(trade)
	if err != nil {
		return err
	}
	s.broadcast(frame)
	return nil
}

// ReportAck broadcasts an order acknowledgment to every connected session.
func (s *Server) ReportAck(ack common.OrderAck) error {
	frame, err := encodeAck(ack)
	if err != nil {
		return err
	}
	s.broadcast(frame)
	return nil
}

// handleSession is a short-lived worker method which reads the next request
// off the session, submits it to the engine and pushes the session back for
// the next request. A dead connection cleans the session up. Only one
// worker holds a given session at a time, so reads never race.
// Note, any error returned from here is fatal to the pool.
func (s *Server) handleSession(t *tomb.Tomb, task any) error {
	session, ok := task.(*ClientSession)
	if !ok {
		return ErrImproperConversion
	}

	select {
	case <-t.Dying():
		s.dropSession(session)
		return nil
	default:
	}

	if err := session.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		log.Error().Err(err).
			Str("address", session.conn.RemoteAddr().String()).
			Msg("failed setting deadline for connection")
		s.dropSession(session)
		return nil
	}

	line, err := session.reader.ReadSlice('\n')
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		// Idle session; hand it back and move on.
		s.pool.AddTask(session)
		return nil
	case errors.Is(err, bufio.ErrBufferFull):
		log.Warn().
			Str("address", session.conn.RemoteAddr().String()).
			Msg("request exceeds frame limit, dropping session")
		s.dropSession(session)
		return nil
	case err != nil:
		// Likely the client has exited; clean up the session.
		s.dropSession(session)
		return nil
	}

	if err := s.handleRequest(line); err != nil {
		s.reply(session, err)
	}

	// Push the session back to handle the next request.
	s.pool.AddTask(session)
	return nil
}

// handleRequest parses one intake line and runs it through the engine. Any
// returned error is a client-facing rejection, not a server fault.
func (s *Server) handleRequest(line []byte) error {
	req, err := parseOrderRequest(line)
	if err != nil {
		return err
	}
	side, err := req.SideValue()
	if err != nil {
		return err
	}

	if _, err := s.engine.SubmitOrder(req.UserID, req.Asset, side, req.Price, req.Amount); err != nil {
		log.Info().
			Err(err).
			Str("user", req.UserID).
			Str("asset", req.Asset).
			Msg("order rejected")
		return err
	}
	return nil
}

// reply sends a rejection frame to the offending session only. Writes are
// serialized under the sessions lock so reply frames and broadcast frames
// never interleave on the wire.
func (s *Server) reply(session *ClientSession, cause error) {
	frame, err := encodeError(cause)
	if err != nil {
		log.Error().Err(err).Msg("unable to encode error reply")
		return
	}

	s.sessionsLock.Lock()
	defer s.sessionsLock.Unlock()
	if err := s.write(session, frame); err != nil {
		delete(s.sessions, session.conn.RemoteAddr().String())
		_ = session.conn.Close()
	}
}

// broadcast fans a frame out to all sessions, pruning the ones that fail.
func (s *Server) broadcast(frame []byte) {
	s.sessionsLock.Lock()
	defer s.sessionsLock.Unlock()

	for addr, session := range s.sessions {
		if err := s.write(session, frame); err != nil {
			log.Error().Err(err).Str("address", addr).Msg("unable to send event")
			delete(s.sessions, addr)
			_ = session.conn.Close()
		}
	}
}

func (s *Server) write(session *ClientSession, frame []byte) error {
	if err := session.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err := session.conn.Write(frame)
	return err
}

// addSession is an atomic map add.
func (s *Server) addSession(conn net.Conn) *ClientSession {
	s.sessionsLock.Lock()
	defer s.sessionsLock.Unlock()

	session := &ClientSession{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, maxRecvSize),
	}
	s.sessions[conn.RemoteAddr().String()] = session
	return session
}

// dropSession is an atomic map remove plus connection close.
func (s *Server) dropSession(session *ClientSession) {
	s.sessionsLock.Lock()
	defer s.sessionsLock.Unlock()

	delete(s.sessions, session.conn.RemoteAddr().String())
	if err := session.conn.Close(); err != nil {
		log.Error().Err(err).
			Str("address", session.conn.RemoteAddr().String()).
			Msg("unable to close connection")
	}
}
