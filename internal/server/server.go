// Package server accepts TCP connections and runs one session handler task
// per connection on the cooperative scheduler.
package server

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"llmsock/internal/sched"
	"llmsock/internal/session"
)

type Config struct {
	// Host is the bind address; empty listens on all interfaces.
	Host string
	Port int
}

func (c Config) Addr() string { return net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) }

// ConnObserver is notified as connections open and close.
type ConnObserver interface {
	ConnOpened()
	ConnClosed()
}

type nopConnObserver struct{}

func (nopConnObserver) ConnOpened() {}
func (nopConnObserver) ConnClosed() {}

type Deps struct {
	Handler  *session.Handler
	Sched    *sched.Scheduler
	Registry *Registry
	Log      zerolog.Logger
	Observer ConnObserver
}

type Server struct {
	cfg     Config
	handler *session.Handler
	sched   *sched.Scheduler
	reg     *Registry
	log     zerolog.Logger
	obs     ConnObserver

	readyOnce sync.Once
	ready     chan struct{}
	addr      net.Addr
}

func New(cfg Config, d Deps) *Server {
	s := &Server{
		cfg:     cfg,
		handler: d.Handler,
		sched:   d.Sched,
		reg:     d.Registry,
		log:     d.Log,
		obs:     d.Observer,
		ready:   make(chan struct{}),
	}
	if s.sched == nil {
		s.sched = sched.New(1)
	}
	if s.reg == nil {
		s.reg = NewRegistry()
	}
	if s.obs == nil {
		s.obs = nopConnObserver{}
	}
	return s
}

// ListenAndServe is New followed by Serve.
func ListenAndServe(ctx context.Context, cfg Config, d Deps) error {
	return New(cfg, d).Serve(ctx)
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound address, or nil before Ready.
func (s *Server) Addr() net.Addr {
	select {
	case <-s.ready:
		return s.addr
	default:
		return nil
	}
}

func (s *Server) Registry() *Registry { return s.reg }

// Serve binds the listener and accepts until ctx is done (returns nil) or
// Accept fails (returns the error). Open connections are closed and their
// handlers awaited before returning.
func (s *Server) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr(), err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	s.addr = ln.Addr()
	s.readyOnce.Do(func() { close(s.ready) })
	s.log.Info().Str("addr", s.addr.String()).Msg("listening")

	stop := make(chan struct{})
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = ln.Close()
		s.reg.CloseAll()
	}()

	err := s.sched.Run(ctx, "listener", func(ctx context.Context, t *sched.Task) error {
		for {
			var c net.Conn
			err := t.Block(ctx, func() error {
				var err error
				c, err = ln.Accept()
				return err
			})
			if err != nil {
				if c != nil {
					_ = c.Close()
				}
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}
			s.handle(ctx, c)
		}
	})
	close(stop)
	<-shutdownDone
	s.sched.Wait()
	if err != nil {
		return err
	}
	s.log.Info().Msg("listener stopped")
	return nil
}

func (s *Server) handle(ctx context.Context, c net.Conn) {
	e := s.reg.Add(c)
	if e == nil {
		_ = c.Close()
		return
	}
	s.obs.ConnOpened()
	log := s.log.With().Str("conn", e.ID()).Str("remote", e.remote).Logger()
	log.Debug().Msg("connection accepted")
	s.sched.Go(ctx, "conn "+e.ID(), func(ctx context.Context, t *sched.Task) error {
		defer func() {
			_ = c.Close()
			s.reg.Remove(e)
			s.obs.ConnClosed()
		}()
		err := s.handler.Serve(ctx, t, session.Conn{RW: c, Log: log, OnRequest: e.Served})
		if err != nil && ctx.Err() == nil {
			log.Debug().Err(err).Msg("connection ended with error")
		} else {
			log.Debug().Msg("connection closed")
		}
		return nil
	})
}
