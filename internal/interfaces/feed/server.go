package feed

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
)

// Server escucha conexiones TCP del puente de hardware; cada conexión es un flujo NDJSON
// con su propio Ack por línea.
type Server struct {
	addr     string
	reader   *Reader
	log      zerolog.Logger
	listener net.Listener
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// NewServer construye el servidor (no escucha hasta Start).
func NewServer(addr string, reader *Reader, log zerolog.Logger) *Server {
	return &Server{
		addr:   addr,
		reader: reader,
		log:    log,
		conns:  make(map[net.Conn]struct{}),
		done:   make(chan struct{}),
	}
}

// Start abre el listener; el ciclo de aceptación corre en segundo plano.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("feed: escuchar en %s: %w", s.addr, err)
	}
	s.listener = ln
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx)
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("feed TCP escuchando")
	return nil
}

// Stop cierra el listener y las conexiones abiertas y espera a que terminen.
func (s *Server) Stop() error {
	close(s.done)
	if s.cancel != nil {
		s.cancel()
	}
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

// Addr dirección efectiva (útil con puerto 0).
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.log.Error().Err(err).Msg("feed: error en accept")
			return
		}
		s.track(conn, true)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			defer conn.Close()
			remote := conn.RemoteAddr().String()
			s.log.Info().Str("remote", remote).Msg("puente conectado")
			if err := s.reader.Consume(ctx, conn, conn); err != nil {
				s.log.Debug().Err(err).Str("remote", remote).Msg("conexión de feed cerrada")
			}
		}()
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}
