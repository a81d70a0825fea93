package relay

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"mailpostbridge/internal/exitcode"
	"mailpostbridge/internal/poster"
	"mailpostbridge/internal/registry"
	"mailpostbridge/internal/transport"
)

func startServer(t *testing.T, h Handler) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{Handler: h, Timeout: 5 * time.Second}
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, ln)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func TestRoundTrip(t *testing.T) {
	seen := make(chan Request, 1)
	addr := startServer(t, HandlerFunc(func(_ context.Context, req Request) Response {
		seen <- req
		return Response{ExitCode: exitcode.NoUser, Diagnostic: "nope"}
	}))

	c := &Client{Addr: addr, DialTimeout: time.Second, Timeout: 5 * time.Second}
	msg := []byte("Subject: hi\r\n\r\nbinary \x00\xff body")
	resp, err := c.Send(context.Background(), Request{ID: "abc", Recipient: "list1@example.com", Message: msg})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.ExitCode != exitcode.NoUser || resp.Diagnostic != "nope" {
		t.Errorf("unexpected response: %+v", resp)
	}
	got := <-seen
	if got.ID != "abc" || got.Recipient != "list1@example.com" || string(got.Message) != string(msg) {
		t.Errorf("server saw %+v", got)
	}
}

func TestConcurrentRequests(t *testing.T) {
	addr := startServer(t, HandlerFunc(func(_ context.Context, req Request) Response {
		time.Sleep(10 * time.Millisecond)
		return Response{Diagnostic: req.ID}
	}))

	c := &Client{Addr: addr, DialTimeout: time.Second, Timeout: 5 * time.Second}

	var wg sync.WaitGroup
	errs := make(chan string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			resp, err := c.Send(context.Background(), Request{ID: id, Recipient: "a@b"})
			if err != nil {
				errs <- err.Error()
				return
			}
			if resp.Diagnostic != id {
				errs <- "response for " + id + " was " + resp.Diagnostic
			}
		}(string(rune('a' + i)))
	}
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Error(e)
	}
}

func TestMalformedRequest(t *testing.T) {
	addr := startServer(t, HandlerFunc(func(context.Context, Request) Response {
		t.Error("handler called for malformed request")
		return Response{}
	}))

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.Write([]byte("this is not json\n"))

	buf := make([]byte, 512)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _ := conn.Read(buf)
	if !strings.Contains(string(buf[:n]), `"exit_code":75`) {
		t.Errorf("expected tempfail response, got %q", buf[:n])
	}
}

func TestSendConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := &Client{Addr: addr, DialTimeout: time.Second, Timeout: time.Second}
	if _, err := c.Send(context.Background(), Request{}); err == nil {
		t.Fatal("expected error")
	}
}

type okPoster struct{ calls int }

func (p *okPoster) Post(context.Context, string, poster.Form) (poster.Result, error) {
	p.calls++
	return poster.Result{StatusCode: http.StatusOK}, nil
}

func TestTransportHandler(t *testing.T) {
	reg, err := registry.New([]registry.Site{{
		Domain:           "example.com",
		PostURL:          "https://site.example/api/mail",
		ValidationString: "s3cr3t",
	}})
	if err != nil {
		t.Fatal(err)
	}
	p := &okPoster{}
	h := TransportHandler(transport.NewInvoker(reg, p, nil), transport.Strict)

	resp := h.Handle(context.Background(), Request{ID: "1", Recipient: "list1@example.com", Message: []byte("m")})
	if resp.ExitCode != exitcode.OK || resp.Error != "" {
		t.Errorf("registered: %+v", resp)
	}

	resp = h.Handle(context.Background(), Request{ID: "2", Recipient: "list1@unknown.org", Message: []byte("m")})
	if resp.ExitCode != exitcode.NoUser || !strings.Contains(resp.Diagnostic, "unknown.org") || resp.Error == "" {
		t.Errorf("unregistered: %+v", resp)
	}

	resp = h.Handle(context.Background(), Request{ID: "3", Recipient: "garbage", Message: []byte("m")})
	if resp.ExitCode != exitcode.Usage {
		t.Errorf("malformed: %+v", resp)
	}

	if p.calls != 1 {
		t.Errorf("poster called %d times, want 1", p.calls)
	}
}
