package wstransport

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jrhy/replica"
)

// Server is the authority's replica.Transport. It is an http.Handler that
// upgrades each request to a subscriber connection.
type Server struct {
	settings *Settings
	logger   *zap.Logger
	poster   replica.Poster
	upgrader websocket.Upgrader

	mu       sync.Mutex
	peers    map[string]*peer
	handlers map[replica.MessageKind]replica.Handler
	onJoin   []func(sub string)
	onLeave  []func(sub string)
}

type peer struct {
	sub       string
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewServer creates a server. Handlers and join/leave callbacks are posted
// to poster when it is non-nil, so they run on the host's Loop.
func NewServer(settings *Settings, logger *zap.Logger, poster replica.Poster) *Server {
	settings = settings.orDefault()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		settings: settings,
		logger:   logger,
		poster:   poster,
		upgrader: websocket.Upgrader{HandshakeTimeout: settings.HandshakeTimeout},
		peers:    map[string]*peer{},
		handlers: map[replica.MessageKind]replica.Handler{},
	}
}

// OnJoin registers fn to be told of each new subscriber connection.
func (s *Server) OnJoin(fn func(sub string)) {
	s.mu.Lock()
	s.onJoin = append(s.onJoin, fn)
	s.mu.Unlock()
}

// OnLeave registers fn to be told when a subscriber connection ends.
func (s *Server) OnLeave(fn func(sub string)) {
	s.mu.Lock()
	s.onLeave = append(s.onLeave, fn)
	s.mu.Unlock()
}

// Handle implements replica.Transport.
func (s *Server) Handle(kind replica.MessageKind, h replica.Handler) {
	s.mu.Lock()
	s.handlers[kind] = h
	s.mu.Unlock()
}

// Subscribers returns the connected subscribers, sorted.
func (s *Server) Subscribers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.peers))
	for sub := range s.peers {
		out = append(out, sub)
	}
	sort.Strings(out)
	return out
}

// Send implements replica.Transport. A subscriber whose send buffer is full
// is disconnected, so it re-syncs when it reconnects.
func (s *Server) Send(to replica.Target, msg replica.Message) error {
	b, err := replica.EncodeMessage(msg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for sub, p := range s.peers {
		if !to.Includes(sub) {
			continue
		}
		select {
		case p.send <- b:
		case <-p.done:
		default:
			p.close()
			errs = append(errs, fmt.Errorf("send to %s: buffer full", sub))
		}
	}
	return errors.Join(errs...)
}

// Close ends every connection.
func (s *Server) Close() {
	s.mu.Lock()
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()
	for _, p := range peers {
		p.close()
	}
}

// ServeHTTP upgrades the request and serves the subscriber until the
// connection ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sub := r.URL.Query().Get(SubscriberParam)
	if sub == "" {
		sub = uuid.NewString()
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Info("upgrade failed", zap.String("subscriber", sub), zap.Error(err))
		return
	}
	p := &peer{
		sub:  sub,
		ws:   ws,
		send: make(chan []byte, s.settings.SendBufferSize),
		done: make(chan struct{}),
	}
	s.mu.Lock()
	if old, ok := s.peers[sub]; ok {
		old.close()
	}
	s.peers[sub] = p
	joins := append([]func(string){}, s.onJoin...)
	s.mu.Unlock()

	go s.write(p)
	for _, fn := range joins {
		fn := fn
		s.post(func() { fn(sub) })
	}
	s.logger.Debug("subscriber connected", zap.String("subscriber", sub))

	s.read(p)

	p.close()
	s.mu.Lock()
	var leaves []func(string)
	if s.peers[sub] == p {
		delete(s.peers, sub)
		leaves = append(leaves, s.onLeave...)
	}
	s.mu.Unlock()
	for _, fn := range leaves {
		fn := fn
		s.post(func() { fn(sub) })
	}
	s.logger.Debug("subscriber disconnected", zap.String("subscriber", sub))
}

func (s *Server) read(p *peer) {
	for {
		p.ws.SetReadDeadline(time.Now().Add(s.settings.ReadTimeout))
		messageType, frame, err := p.ws.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.BinaryMessage || len(frame) == 0 {
			continue
		}
		msg, err := replica.DecodeMessage(frame)
		if err != nil {
			s.logger.Warn("bad frame", zap.String("subscriber", p.sub), zap.Error(err))
			continue
		}
		s.mu.Lock()
		h := s.handlers[msg.Kind]
		s.mu.Unlock()
		if h != nil {
			sub := p.sub
			s.post(func() { h(sub, msg) })
		}
	}
}

func (s *Server) write(p *peer) {
	defer p.close()
	for {
		select {
		case <-p.done:
			return
		case frame := <-p.send:
			p.ws.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout))
			if err := p.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				s.logger.Info("write failed", zap.String("subscriber", p.sub), zap.Error(err))
				return
			}
		case <-time.After(s.settings.PingTimeout):
			p.ws.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout))
			if err := p.ws.WriteMessage(websocket.BinaryMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) post(fn func()) {
	if s.poster != nil {
		s.poster.Post(fn)
		return
	}
	fn()
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.ws.Close()
	})
}
