// Package relay carries deliveries from the mpt transport to the long-lived
// mptd service over a local TCP connection. Each connection carries exactly
// one newline-terminated JSON request and one JSON response.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"mailpostbridge/internal/exitcode"
	"mailpostbridge/internal/logging"
	"mailpostbridge/internal/transport"
)

// Request is what mpt hands to mptd
type Request struct {
	ID        string `json:"id"`
	Recipient string `json:"recipient"`
	Message   []byte `json:"message"`
}

// Response tells mpt how to exit
type Response struct {
	ExitCode   int    `json:"exit_code"`
	Diagnostic string `json:"diagnostic,omitempty"`
	Error      string `json:"error,omitempty"`
}

type Handler interface {
	Handle(ctx context.Context, req Request) Response
}

type HandlerFunc func(ctx context.Context, req Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// TransportHandler runs each request through inv under policy p.
func TransportHandler(inv *transport.Invoker, p transport.ExitPolicy) Handler {
	return HandlerFunc(func(ctx context.Context, req Request) Response {
		res := transport.Run(ctx, inv, p, req.ID, req.Recipient, req.Message)
		resp := Response{ExitCode: res.ExitCode, Diagnostic: res.Diagnostic}
		if res.Err != nil {
			resp.Error = res.Err.Error()
		}
		return resp
	})
}

// Server accepts relay connections and hands each request to Handler.
type Server struct {
	Handler Handler
	Timeout time.Duration // per connection, covers reading, delivery and reply
	Log     logging.Logger

	wg sync.WaitGroup
}

// Serve accepts connections until ctx is cancelled, then closes ln and waits
// for in-flight deliveries to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.Log == nil {
		s.Log = logging.Nop{}
	}
	s.Log.Debug(ctx, "Starting connection acceptor", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	defer s.wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.Log.Debug(ctx, "Stopping connection acceptor", "reason", "context cancelled")
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.Log.Error(ctx, "Failed to accept connection", "error", err.Error())
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()

	// in-flight deliveries are not cut short by shutdown
	reqCtx := context.WithoutCancel(ctx)
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(reqCtx, s.Timeout)
		defer cancel()
		if err := conn.SetDeadline(time.Now().Add(s.Timeout)); err != nil {
			s.Log.Error(ctx, "Failed to set deadline", "error", err.Error(), "remote_addr", remote)
			return
		}
	}

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.Log.Error(ctx, "Failed to decode relay request", "error", err.Error(), "remote_addr", remote)
		writeResponse(conn, Response{ExitCode: exitcode.TempFail, Error: "malformed relay request"})
		return
	}

	s.Log.Debug(ctx, "Relay request received", "id", req.ID, "recipient", req.Recipient, "size", len(req.Message))

	resp := s.Handler.Handle(reqCtx, req)
	if err := writeResponse(conn, resp); err != nil {
		s.Log.Error(ctx, "Failed to write relay response", "id", req.ID, "error", err.Error(), "remote_addr", remote)
	}
}

func writeResponse(conn net.Conn, resp Response) error {
	return json.NewEncoder(conn).Encode(resp)
}

// Client sends requests to a Server.
type Client struct {
	Addr        string
	DialTimeout time.Duration
	Timeout     time.Duration
}

// Send delivers req and waits for the server's verdict.
func (c *Client) Send(ctx context.Context, req Request) (Response, error) {
	dialer := net.Dialer{Timeout: c.DialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return Response{}, fmt.Errorf("error connecting to relay: %w", err)
	}
	defer conn.Close()

	if c.Timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(c.Timeout)); err != nil {
			return Response{}, fmt.Errorf("error setting deadline: %w", err)
		}
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("error sending request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("error reading response: %w", err)
	}
	return resp, nil
}
