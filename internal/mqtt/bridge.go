// Package mqtt carries Cync commands to the devices and switch state
// reports back to the hub over an MQTT broker.
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/cyncd/internal/config"
	"github.com/dokzlo13/cyncd/internal/cync"
)

const (
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250 // milliseconds
)

// StateSink receives decoded switch state reports.
type StateSink interface {
	SwitchIDs() []string
	ApplySwitchState(deviceID string, u cync.StateUpdate) error
}

// Bridge is a cync.Commander backed by an MQTT broker.
//
// Subscriptions are restored whenever the client reconnects.
type Bridge struct {
	client  pahomqtt.Client
	topics  Topics
	qos     byte
	limiter *rate.Limiter

	subMu         sync.RWMutex
	subscriptions map[string]pahomqtt.MessageHandler
}

var _ cync.Commander = (*Bridge)(nil)

// Connect dials the broker and returns a connected bridge.
func Connect(cfg config.MQTTConfig) (*Bridge, error) {
	b := newBridge(cfg)

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetMaxReconnectInterval(time.Minute).
		SetOrderMatters(false)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("MQTT connected")
		b.restoreSubscriptions()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost")
	})
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		log.Debug().Str("broker", cfg.Broker).Msg("MQTT reconnecting")
	})

	b.client = pahomqtt.NewClient(opts)
	token := b.client.Connect()
	timeout := cfg.ConnectTimeout.Duration()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return b, nil
}

func newBridge(cfg config.MQTTConfig) *Bridge {
	limit := rate.Limit(cfg.RateLimitRPS)
	if cfg.RateLimitRPS <= 0 {
		limit = rate.Inf
	}
	burst := int(cfg.RateLimitRPS)
	if burst < 1 {
		burst = 1
	}
	return &Bridge{
		topics:        Topics{Prefix: cfg.TopicPrefix},
		qos:           byte(cfg.QoS),
		limiter:       rate.NewLimiter(limit, burst),
		subscriptions: make(map[string]pahomqtt.MessageHandler),
	}
}

// Send publishes a command, waiting for the rate limiter first.
func (b *Bridge) Send(ctx context.Context, cmd cync.Command) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	if !b.IsConnected() {
		return ErrNotConnected
	}

	payload, err := encodeCommand(cmd)
	if err != nil {
		return err
	}
	topic := b.topics.Command(cmd)

	token := b.client.Publish(topic, b.qos, false, payload)
	if err := waitToken(ctx, token); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	log.Debug().Str("topic", topic).RawJSON("payload", payload).Msg("Command published")
	return nil
}

// SubscribeStates feeds switch state reports into sink. The topic level
// carries the escaped device ID, so it is mapped back through the sink's
// inventory.
func (b *Bridge) SubscribeStates(sink StateSink) error {
	ids := segmentIndex(sink.SwitchIDs())
	handler := b.wrapHandler(func(topic string, payload []byte) error {
		segment, err := b.topics.ParseState(topic)
		if err != nil {
			return err
		}
		deviceID, ok := ids[segment]
		if !ok {
			deviceID = segment
		}
		u, err := decodeState(payload)
		if err != nil {
			return err
		}
		return sink.ApplySwitchState(deviceID, u)
	})
	return b.subscribe(b.topics.StateFilter(), handler)
}

// segmentIndex maps topic segments to device IDs. On collision the first
// ID in order wins.
func segmentIndex(ids []string) map[string]string {
	index := make(map[string]string, len(ids))
	for _, id := range ids {
		seg := Segment(id)
		if prev, ok := index[seg]; ok {
			log.Warn().Str("device_id", id).Str("shadowed_by", prev).Str("segment", seg).
				Msg("Device IDs share a topic segment")
			continue
		}
		index[seg] = id
	}
	return index
}

func (b *Bridge) subscribe(topic string, handler pahomqtt.MessageHandler) error {
	b.subMu.Lock()
	b.subscriptions[topic] = handler
	b.subMu.Unlock()

	token := b.client.Subscribe(topic, b.qos, handler)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe %s: timeout after %v", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		b.subMu.Lock()
		delete(b.subscriptions, topic)
		b.subMu.Unlock()
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	log.Info().Str("topic", topic).Msg("MQTT subscribed")
	return nil
}

func (b *Bridge) restoreSubscriptions() {
	b.subMu.RLock()
	defer b.subMu.RUnlock()

	for topic, handler := range b.subscriptions {
		b.client.Subscribe(topic, b.qos, handler)
	}
}

// wrapHandler adds panic recovery and error logging to a message handler.
func (b *Bridge) wrapHandler(fn func(topic string, payload []byte) error) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("topic", msg.Topic()).Msg("MQTT handler panic recovered")
			}
		}()

		if err := fn(msg.Topic(), msg.Payload()); err != nil {
			log.Warn().Err(err).Str("topic", msg.Topic()).Msg("Failed to handle MQTT message")
		}
	}
}

// IsConnected reports whether the broker connection is up.
func (b *Bridge) IsConnected() bool {
	return b.client != nil && b.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	if b.client == nil {
		return
	}
	b.client.Disconnect(disconnectQuiesce)
	log.Info().Msg("MQTT disconnected")
}

func waitToken(ctx context.Context, token pahomqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("timeout after %v", publishTimeout)
	}
}
