package fdxd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"filedex/internal/index/meta"
	"filedex/internal/index/pool"
)

// Server accepts JSONL connections and dispatches requests. Each request
// runs under its own timeout so one slow search cannot wedge a connection
// peer's whole session.
type Server struct {
	addr           string
	handlers       *Handlers
	requestTimeout time.Duration
	log            *slog.Logger

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

func NewServer(addr string, h *Handlers, requestTimeout time.Duration, log *slog.Logger) (*Server, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{addr: addr, handlers: h, requestTimeout: requestTimeout, log: log}, nil
}

// Addr returns the bound address once Serve has started listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Listen binds the address without accepting yet, so callers can learn
// the port before starting Serve.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Serve runs the accept loop until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		s.mu.Lock()
		ln = s.ln
		s.mu.Unlock()
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	s.log.Info("listening", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	connID := uuid.NewString()
	log := s.log.With("conn", connID, "remote", conn.RemoteAddr().String())
	log.Debug("connection open")

	sc := newLineScanner(conn)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			_ = writeLine(conn, newError(nil, CodeParseError, "parse error"))
			continue
		}
		if req.JSONRPC != ProtocolVersion || strings.TrimSpace(req.Method) == "" {
			_ = writeLine(conn, newError(req.ID, CodeInvalidRequest, "invalid request"))
			continue
		}

		resp := s.handleRequest(ctx, req, log)
		if req.IsNotification() {
			continue
		}
		if err := writeLine(conn, resp); err != nil {
			log.Debug("write failed", "error", err)
			return
		}
	}
	log.Debug("connection closed")
}

func (s *Server) handleRequest(ctx context.Context, req Request, log *slog.Logger) Response {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.handlers.dispatch(ctx, req)
	if err != nil {
		code, msg := codeFor(err)
		log.Warn("request failed", "method", req.Method, "code", code, "error", err)
		return newError(req.ID, code, msg)
	}
	log.Debug("request done", "method", req.Method, "elapsed", time.Since(start))
	return newResult(req.ID, result)
}

// codeFor maps handler errors onto protocol error codes.
func codeFor(err error) (int, string) {
	switch {
	case errors.Is(err, errMethodNotFound):
		return CodeMethodNotFound, "method not found"
	case errors.Is(err, errInvalidParams):
		return CodeInvalidParams, err.Error()
	case errors.Is(err, pool.ErrStoreBusy):
		return CodeStoreBusy, "store busy, retry later"
	case errors.Is(err, meta.ErrStoreUnavailable):
		return CodeStoreUnavailable, "store unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return CodeInternalError, "request timed out"
	default:
		return CodeInternalError, err.Error()
	}
}
