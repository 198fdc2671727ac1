package evolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/neatrank/internal/market"
	"github.com/ajitpratap0/neatrank/internal/neat"
)

// ErrRemote wraps failures reported by the evolution service
var ErrRemote = errors.New("evolution service error")

// NATSConfig configures the NATS client
type NATSConfig struct {
	URL             string
	Name            string
	EvaluateSubject string
	EvolveSubject   string
	RequestTimeout  time.Duration
	EvolveTimeout   time.Duration
}

// DefaultNATSConfig returns default configuration
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:             "nats://localhost:4222",
		Name:            "neatrank",
		EvaluateSubject: "neat.evaluate",
		EvolveSubject:   "neat.evolve",
		RequestTimeout:  60 * time.Second,
		EvolveTimeout:   time.Hour,
	}
}

// NATSClient implements Evaluator and Searcher with NATS request/reply
type NATSClient struct {
	nc     *nats.Conn
	config NATSConfig
}

// NewNATSClient connects to NATS
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	defaults := DefaultNATSConfig()
	if config.Name == "" {
		config.Name = defaults.Name
	}
	if config.EvaluateSubject == "" {
		config.EvaluateSubject = defaults.EvaluateSubject
	}
	if config.EvolveSubject == "" {
		config.EvolveSubject = defaults.EvolveSubject
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if config.EvolveTimeout <= 0 {
		config.EvolveTimeout = defaults.EvolveTimeout
	}

	nc, err := nats.Connect(
		config.URL,
		nats.Name(config.Name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().
		Str("nats_url", config.URL).
		Str("evaluate_subject", config.EvaluateSubject).
		Str("evolve_subject", config.EvolveSubject).
		Msg("Evolution client initialized")

	return &NATSClient{nc: nc, config: config}, nil
}

// Conn returns the underlying connection
func (c *NATSClient) Conn() *nats.Conn {
	return c.nc
}

// Evaluate asks the evolution service to simulate network over candles
func (c *NATSClient) Evaluate(ctx context.Context, network *neat.Network, applicant *neat.Applicant, candles []market.Candle) (neat.TrialOutcome, error) {
	req := EvaluateRequest{
		Network:   *network,
		Applicant: *applicant,
		Candles:   CandleSeries(candles),
	}

	var reply EvaluateReply
	if err := c.request(ctx, c.config.EvaluateSubject, c.config.RequestTimeout, req, &reply); err != nil {
		return neat.TrialOutcome{}, fmt.Errorf("failed to evaluate network %s: %w", network.ObjectID, err)
	}
	return reply.Outcome, nil
}

// Evolve runs a search and returns the id of the network it stored
func (c *NATSClient) Evolve(ctx context.Context, applicant *neat.Applicant, opts EvolveOptions) (string, bool, error) {
	req := EvolveRequest{Applicant: *applicant, Options: opts}

	var reply EvolveReply
	if err := c.request(ctx, c.config.EvolveSubject, c.config.EvolveTimeout, req, &reply); err != nil {
		return "", false, fmt.Errorf("failed to evolve applicant %s: %w", applicant.ObjectID, err)
	}
	return reply.NetworkID, reply.NetworkID != "", nil
}

func (c *NATSClient) request(ctx context.Context, subject string, timeout time.Duration, payload, out interface{}) error {
	if !c.nc.IsConnected() {
		return fmt.Errorf("NATS not connected")
	}

	msg, err := NewRequest(payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	if limit := c.nc.MaxPayload(); limit > 0 && int64(len(data)) > limit {
		return fmt.Errorf("request of %d bytes exceeds NATS max payload %d", len(data), limit)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	natsMsg, err := c.nc.RequestWithContext(reqCtx, subject, data)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var reply Message
	if err := json.Unmarshal(natsMsg.Data, &reply); err != nil {
		return fmt.Errorf("failed to unmarshal reply: %w", err)
	}
	if reply.Error != "" {
		return fmt.Errorf("%w: %s", ErrRemote, reply.Error)
	}
	if err := reply.UnmarshalPayload(out); err != nil {
		return err
	}

	log.Debug().
		Str("request_id", msg.ID.String()).
		Str("subject", subject).
		Int("bytes", len(data)).
		Dur("duration", time.Since(msg.Timestamp)).
		Msg("Request completed")

	return nil
}

// ServeEvaluator answers evaluate requests with evaluator
func (c *NATSClient) ServeEvaluator(evaluator Evaluator) (*nats.Subscription, error) {
	return c.serve(c.config.EvaluateSubject, func(ctx context.Context, msg *Message) (interface{}, error) {
		var req EvaluateRequest
		if err := msg.UnmarshalPayload(&req); err != nil {
			return nil, err
		}
		outcome, err := evaluator.Evaluate(ctx, &req.Network, &req.Applicant, req.Candles)
		if err != nil {
			return nil, err
		}
		return EvaluateReply{Outcome: outcome}, nil
	})
}

// ServeSearcher answers evolve requests with searcher
func (c *NATSClient) ServeSearcher(searcher Searcher) (*nats.Subscription, error) {
	return c.serve(c.config.EvolveSubject, func(ctx context.Context, msg *Message) (interface{}, error) {
		var req EvolveRequest
		if err := msg.UnmarshalPayload(&req); err != nil {
			return nil, err
		}
		id, _, err := searcher.Evolve(ctx, &req.Applicant, req.Options)
		if err != nil {
			return nil, err
		}
		return EvolveReply{NetworkID: id}, nil
	})
}

func (c *NATSClient) serve(subject string, handle func(ctx context.Context, msg *Message) (interface{}, error)) (*nats.Subscription, error) {
	sub, err := c.nc.Subscribe(subject, func(natsMsg *nats.Msg) {
		var msg Message
		if err := json.Unmarshal(natsMsg.Data, &msg); err != nil {
			log.Warn().Err(err).Str("subject", subject).Msg("Failed to unmarshal message")
			return
		}

		payload, handlerErr := handle(context.Background(), &msg)
		if handlerErr != nil {
			log.Error().
				Err(handlerErr).
				Str("request_id", msg.ID.String()).
				Str("subject", subject).
				Msg("Message handler error")
		}

		reply, err := NewReply(&msg, payload, handlerErr)
		if err != nil {
			log.Error().Err(err).Msg("Failed to build reply")
			return
		}
		data, err := json.Marshal(reply)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal reply")
			return
		}
		if err := natsMsg.Respond(data); err != nil {
			log.Error().Err(err).Msg("Failed to send reply")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub, nil
}

// SubscribeNetworks delivers network ids published on subject to handler.
// With a queue group, each id goes to one member of the group. Messages
// are handled one at a time.
func (c *NATSClient) SubscribeNetworks(subject, queue string, handler func(networkID string)) (*nats.Subscription, error) {
	cb := func(msg *nats.Msg) {
		id := string(msg.Data)
		if id == "" {
			log.Warn().Str("subject", subject).Msg("Ignoring empty network id")
			return
		}
		handler(id)
	}

	var sub *nats.Subscription
	var err error
	if queue != "" {
		sub, err = c.nc.QueueSubscribe(subject, queue, cb)
	} else {
		sub, err = c.nc.Subscribe(subject, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	log.Info().Str("subject", subject).Str("queue", queue).Msg("Subscribed to network announcements")
	return sub, nil
}

// PublishNetwork announces a stored network id
func (c *NATSClient) PublishNetwork(subject, networkID string) error {
	if err := c.nc.Publish(subject, []byte(networkID)); err != nil {
		return fmt.Errorf("failed to publish network %s: %w", networkID, err)
	}
	return c.nc.Flush()
}

// Close drains the connection
func (c *NATSClient) Close() error {
	if c.nc == nil {
		return nil
	}
	if err := c.nc.Drain(); err != nil {
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}
