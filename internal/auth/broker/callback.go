package broker

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/phol232/AppSaludable-sub000/internal/logger"
)

// callbackResult is what the provider redirect delivered to the loopback
// server: either an authorization code or an OAuth error.
type callbackResult struct {
	Code    string
	State   string
	ErrCode string
	ErrDesc string
}

// CallbackServer is the loopback HTTP server that receives the OAuth
// redirect of an interactive provider sign-in. It is bound once at startup
// so providers can be configured with a stable redirect URL, and serves
// exactly one armed flow at a time.
type CallbackServer struct {
	server *http.Server
	url    string

	mu      sync.Mutex
	pending chan callbackResult
}

// NewCallbackServer binds host:port (port 0 picks a free port) and starts
// serving. Call Close on shutdown.
func NewCallbackServer(host string, port int) (*CallbackServer, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("broker: failed to bind callback server: %w", err)
	}

	boundPort := listener.Addr().(*net.TCPAddr).Port

	cs := &CallbackServer{
		url: fmt.Sprintf("http://%s:%d/callback", host, boundPort),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/callback", cs.handleCallback)
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "AppSaludable sign-in helper")
	})

	cs.server = &http.Server{
		Handler:     router,
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		if err := cs.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Named("broker").Error("callback server failed: " + err.Error())
		}
	}()

	return cs, nil
}

// URL returns the redirect URL providers must be registered with.
func (cs *CallbackServer) URL() string {
	return cs.url
}

// arm reserves the server for one flow and returns the channel the
// redirect result will be delivered on.
func (cs *CallbackServer) arm() <-chan callbackResult {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.pending = make(chan callbackResult, 1)
	return cs.pending
}

// disarm drops the active flow. Redirects arriving afterwards are ignored.
func (cs *CallbackServer) disarm() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.pending = nil
}

func (cs *CallbackServer) handleCallback(c *gin.Context) {
	res := callbackResult{
		Code:    c.Query("code"),
		State:   c.Query("state"),
		ErrCode: c.Query("error"),
		ErrDesc: c.Query("error_description"),
	}

	cs.mu.Lock()
	pending := cs.pending
	cs.pending = nil
	cs.mu.Unlock()

	if pending == nil {
		// No flow in progress; stale or duplicate redirect.
		c.String(http.StatusConflict, "no sign-in in progress")
		return
	}

	pending <- res

	if res.ErrCode != "" {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, resultPage("Sign-in not completed",
			"You can close this window and return to AppSaludable."))
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, resultPage("Signed in",
		"You can close this window and return to AppSaludable."))
}

// Close shuts the server down.
func (cs *CallbackServer) Close(ctx context.Context) error {
	return cs.server.Shutdown(ctx)
}

func resultPage(title, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>AppSaludable - %s</title></head>
<body style="font-family: system-ui; text-align: center; margin-top: 20vh;">
<h1>%s</h1>
<p>%s</p>
</body>
</html>`, title, title, body)
}
