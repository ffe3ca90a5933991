package sso

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/alexjbarnes/hangar-sync/internal/errors"
)

const (
	// CallbackPath is the fixed path the SSO application is registered with.
	CallbackPath = "/auth/callback"

	// callbackWait is how long the listener waits for the provider redirect
	// before giving up.
	callbackWait = 5 * time.Minute

	// portScanAttempts bounds the increment-on-conflict port scan. The port
	// that actually binds becomes part of the redirect URI, so the scan runs
	// before the authorization URL is built.
	portScanAttempts = 10

	// shutdownGrace lets the confirmation page finish rendering in the
	// browser before the listener goes away.
	shutdownGrace = time.Second
)

const successPage = `<!DOCTYPE html>
<html>
<head><title>hangar-sync</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em;">
<h1>Login complete</h1>
<p>hangar-sync has received the authorization. You can close this tab.</p>
</body>
</html>`

var errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head><title>hangar-sync</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em;">
<h1>Login failed</h1>
<p>{{.Error}}{{if .Description}}: {{.Description}}{{end}}</p>
<p>Return to the terminal for details.</p>
</body>
</html>`))

// CallbackServer is a one-shot loopback HTTP listener that captures the SSO
// redirect. It serves exactly one meaningful request and then shuts down;
// one OS socket is held for the lifetime of one authorization attempt.
type CallbackServer struct {
	logger *slog.Logger
	port   int

	server   *http.Server
	listener net.Listener
	resultCh chan string
	errCh    chan error
	once     sync.Once
	stopOnce sync.Once
}

// NewCallbackServer creates a listener that prefers the given port.
func NewCallbackServer(port int, logger *slog.Logger) *CallbackServer {
	return &CallbackServer{
		logger:   logger,
		port:     port,
		resultCh: make(chan string, 1),
		errCh:    make(chan error, 1),
	}
}

// Start binds the listener and returns the redirect URI to advertise to the
// provider. When the preferred port is taken it retries on the next port, up
// to portScanAttempts ports.
func (s *CallbackServer) Start() (string, error) {
	var (
		listener net.Listener
		err      error
	)

	port := s.port
	for attempt := 0; attempt < portScanAttempts; attempt++ {
		listener, err = net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port+attempt))
		if err == nil {
			break
		}
	}

	if listener == nil {
		return "", fmt.Errorf("binding callback listener (ports %d-%d): %w", port, port+portScanAttempts-1, err)
	}

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, s.handleCallback)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case s.errCh <- err:
			default:
			}
		}
	}()

	s.logger.Debug("callback listener started", slog.Int("port", s.port))

	return s.RedirectURI(), nil
}

// RedirectURI returns the redirect URI for the port actually bound.
func (s *CallbackServer) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d%s", s.port, CallbackPath)
}

// Wait blocks until the redirect arrives and returns the full raw callback
// URL including the query string. It fails with errors.ErrCallbackTimeout
// after five minutes; the listener is torn down on every exit path.
func (s *CallbackServer) Wait(ctx context.Context) (string, error) {
	timer := time.NewTimer(callbackWait)
	defer timer.Stop()

	select {
	case raw := <-s.resultCh:
		return raw, nil
	case err := <-s.errCh:
		s.Stop()
		return "", fmt.Errorf("callback listener: %w", err)
	case <-timer.C:
		s.Stop()
		return "", errors.ErrCallbackTimeout
	case <-ctx.Done():
		s.Stop()
		return "", ctx.Err()
	}
}

// handleCallback captures the one meaningful request. The mux already
// rejects every other path with a 404 without touching listener state.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	handled := false
	s.once.Do(func() {
		handled = true
		s.capture(w, r)
	})

	if !handled {
		http.Error(w, "callback already processed", http.StatusBadRequest)
	}
}

func (s *CallbackServer) capture(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	query := r.URL.Query()
	if errCode := query.Get("error"); errCode != "" {
		_ = errorPage.Execute(w, map[string]string{
			"Error":       errCode,
			"Description": query.Get("error_description"),
		})
	} else {
		fmt.Fprint(w, successPage)
	}

	// The flow layer parses the raw URL; the listener's only job is to
	// deliver it and get off the port.
	select {
	case s.resultCh <- r.URL.String():
	default:
	}

	go func() {
		time.Sleep(shutdownGrace)
		s.Stop()
	}()
}

// Stop shuts the listener down. Safe to call more than once.
func (s *CallbackServer) Stop() {
	s.stopOnce.Do(func() {
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}

		if s.listener != nil {
			_ = s.listener.Close()
		}

		s.logger.Debug("callback listener stopped", slog.Int("port", s.port))
	})
}

// Port returns the port actually bound.
func (s *CallbackServer) Port() int {
	return s.port
}
