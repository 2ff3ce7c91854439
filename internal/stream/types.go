package stream

import (
	"errors"
	"time"

	"github.com/rickgao/barsync/internal/exchange"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no data or pong)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// Candle is one raw candle row received from the stream.
type Candle struct {
	InstID     string
	Channel    string
	Raw        exchange.RawCandle
	ReceivedAt time.Time
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // e.g. wss://ws.okx.com:8443/ws/v5/business
	PingInterval time.Duration // How often a text "ping" is sent
	ReadTimeout  time.Duration // Max silence (no data, no pong) before the link is stale
	WriteTimeout time.Duration
	BufferSize   int // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults. OKX drops links idle for 30s.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 20 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1000,
	}
}

// request is an operation sent to the server.
type request struct {
	Op   string       `json:"op"`
	Args []channelArg `json:"args"`
}

type channelArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// pushMessage covers both event replies and data pushes.
type pushMessage struct {
	Event string               `json:"event"`
	Code  string               `json:"code"`
	Msg   string               `json:"msg"`
	Arg   *channelArg          `json:"arg"`
	Data  []exchange.RawCandle `json:"data"`
}
