package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpillora/backoff"

	"github.com/rickgao/barsync/internal/failure"
	"github.com/rickgao/barsync/internal/model"
)

// SubscriberConfig configures a candle channel subscription.
type SubscriberConfig struct {
	Client             ClientConfig
	Symbol             string
	Timeframe          model.Timeframe
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	SubscribeTimeout   time.Duration
}

// Subscriber keeps one candle channel subscription alive.
type Subscriber struct {
	cfg    SubscriberConfig
	logger *slog.Logger
}

// NewSubscriber creates a Subscriber.
func NewSubscriber(cfg SubscriberConfig, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = 3 * time.Second
	}
	if cfg.ReconnectMaxDelay < cfg.ReconnectBaseDelay {
		cfg.ReconnectMaxDelay = cfg.ReconnectBaseDelay
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = 10 * time.Second
	}
	return &Subscriber{
		cfg:    cfg,
		logger: logger,
	}
}

// Channel returns the exchange channel name, e.g. "candle1H".
func (s *Subscriber) Channel() string {
	return "candle" + s.cfg.Timeframe.OKXBar()
}

// Run delivers candles to handle until ctx is canceled. Any transport failure
// closes the connection and reconnects after a capped exponential backoff.
// It returns ctx.Err() on cancellation.
func (s *Subscriber) Run(ctx context.Context, handle func(Candle)) error {
	b := &backoff.Backoff{
		Min:    s.cfg.ReconnectBaseDelay,
		Max:    s.cfg.ReconnectMaxDelay,
		Factor: 2,
		Jitter: true,
	}

	for {
		subscribed, err := s.session(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if subscribed {
			b.Reset()
		}

		wait := b.Duration()
		s.logger.Warn("stream disconnected, reconnecting",
			"channel", s.Channel(),
			"symbol", s.cfg.Symbol,
			"error", err,
			"kind", failure.KindOf(err),
			"backoff", wait,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// session runs one connection. subscribed reports whether the server
// acknowledged the subscription before the session ended.
func (s *Subscriber) session(ctx context.Context, handle func(Candle)) (subscribed bool, err error) {
	c := NewClient(s.cfg.Client, s.logger)
	defer c.Close()

	if err := c.Connect(ctx); err != nil {
		return false, &failure.TransportError{Op: "stream connect", Err: err}
	}

	sub, err := json.Marshal(request{
		Op:   "subscribe",
		Args: []channelArg{{Channel: s.Channel(), InstID: s.cfg.Symbol}},
	})
	if err != nil {
		return false, fmt.Errorf("marshal subscribe: %w", err)
	}
	if err := c.Send(sub); err != nil {
		return false, &failure.TransportError{Op: "stream subscribe", Err: err}
	}

	ackTimer := time.NewTimer(s.cfg.SubscribeTimeout)
	defer ackTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return subscribed, ctx.Err()

		case err := <-c.Errors():
			// Deliver what was read before the link failed.
		drain:
			for {
				select {
				case msg := <-c.Messages():
					s.dispatch(msg, handle)
				default:
					break drain
				}
			}
			return subscribed, &failure.TransportError{Op: "stream read", Err: err}

		case <-ackTimer.C:
			if !subscribed {
				return false, &failure.TransportError{Op: "stream subscribe", Err: errors.New("no subscribe acknowledgement")}
			}

		case msg := <-c.Messages():
			acked, err := s.dispatch(msg, handle)
			if acked {
				subscribed = true
			}
			if err != nil {
				return subscribed, err
			}
		}
	}
}

// dispatch handles one frame. acked reports a subscribe acknowledgement or
// data push; err is set for an exchange error event.
func (s *Subscriber) dispatch(msg TimestampedMessage, handle func(Candle)) (acked bool, err error) {
	var push pushMessage
	if err := json.Unmarshal(msg.Data, &push); err != nil {
		s.logger.Warn("undecodable stream message",
			"error", &failure.DecodeError{Op: "decode push", Err: err},
			"bytes", len(msg.Data),
		)
		return false, nil
	}

	switch push.Event {
	case "":
	case "subscribe":
		s.logger.Info("stream subscribed", "channel", s.Channel(), "symbol", s.cfg.Symbol)
		return true, nil
	case "error":
		return false, &failure.TransportError{Op: "stream subscribe", Code: push.Code, Message: push.Msg}
	default:
		s.logger.Debug("ignoring stream event", "event", push.Event)
		return false, nil
	}

	// Data can arrive before the ack on a busy channel.
	for _, raw := range push.Data {
		handle(Candle{
			InstID:     s.cfg.Symbol,
			Channel:    s.Channel(),
			Raw:        raw,
			ReceivedAt: msg.ReceivedAt,
		})
	}
	return true, nil
}
