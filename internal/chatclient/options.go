package chatclient

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Options configures a Session or a bare Connection. Zero values get
// conservative defaults; only SocketURL, BaseURL and Token are required.
type Options struct {
	// SocketURL is the websocket endpoint, e.g. ws://host:8080/ws.
	SocketURL string
	// BaseURL is the REST endpoint root, e.g. http://host:3000.
	BaseURL string
	// Token is the bearer credential used for both transports.
	Token string

	// MaxRetries bounds reconnect attempts after an unexpected drop.
	// Default 5.
	MaxRetries int
	// RetryBackoff is the base reconnect delay; attempt n waits n times
	// this long. Default 1s.
	RetryBackoff time.Duration
	// HandshakeTimeout bounds the dial plus ack wait. Default 10s.
	HandshakeTimeout time.Duration

	// TypingDebounce, TypingIdle and TypingExpiry tune the typing
	// coordinator; zero values use the package defaults.
	TypingDebounce time.Duration
	TypingIdle     time.Duration
	TypingExpiry   time.Duration

	// HTTPClient is used for REST calls. Defaults to a client with a 15s
	// timeout.
	HTTPClient *http.Client

	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = defaultRetryBackoff
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = defaultHandshakeTimeout
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
