package mqtt

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sweeney/estop-sensor/internal/logic"
	"github.com/sweeney/estop-sensor/internal/printer"
	"github.com/sweeney/estop-sensor/internal/session"
)

// DefaultBufferSize is how many messages are kept while disconnected.
const DefaultBufferSize = 100

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	GCode      string // included in stop payloads
	BufferSize int
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	topic  string
	gcode  string

	mu        sync.Mutex
	buffer    *ringBuffer
	connected bool
	everUp    bool
	subPrefix string
	onPrinter func(printer.Event)
}

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	p := &RealPublisher{
		topic:  Topic,
		gcode:  o.GCode,
		buffer: newRingBuffer(o.BufferSize),
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, WillPayload(), 1, false).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// onConnect runs on every (re)connect: restore the printer subscription,
// then replay anything buffered while offline.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.everUp
	p.everUp = true
	p.connected = true
	prefix, handler := p.subPrefix, p.onPrinter
	msgs, dropped := p.buffer.drainAll()
	p.mu.Unlock()

	if handler != nil {
		if err := p.subscribe(prefix, handler); err != nil {
			zap.S().Warnf("mqtt: resubscribe %s: %v", prefix, err)
		}
	}

	if len(msgs) > 0 {
		zap.S().Infof("mqtt: replaying %d buffered messages (%d dropped)", len(msgs), dropped)
	}
	for _, m := range msgs {
		if err := p.send(m.topic, m.qos, m.retained, m.payload); err != nil {
			zap.S().Warnf("mqtt: replay to %s: %v", m.topic, err)
		}
	}

	if reconnect {
		zap.S().Infof("mqtt: reconnected")
		ev := SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}
		if err := p.PublishSystem(ev); err != nil {
			zap.S().Warnf("mqtt: publish reconnected: %v", err)
		}
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	zap.S().Warnf("mqtt: connection lost: %v", err)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Publish sends a sensor event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event, p.gcode)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// Stop commands are QoS 1; transitions are QoS 0 (at-most-once)
	var qos byte
	if event.Type == logic.EventStop {
		qos = 1
	}
	return p.publish(p.topic, qos, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	return p.publish(TopicSystem, 1, event.Retained, payload)
}

// PublishTest sends a sensor test outcome to the MQTT broker.
func (p *RealPublisher) PublishTest(outcome session.Outcome) error {
	payload, err := FormatTestPayload(outcome)
	if err != nil {
		return fmt.Errorf("format test payload: %w", err)
	}
	return p.publish(TopicTests, 0, false, payload)
}

// SubscribePrinter subscribes to OctoPrint events under prefix. The
// subscription is restored after every reconnect.
func (p *RealPublisher) SubscribePrinter(prefix string, handler func(printer.Event)) error {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	p.mu.Lock()
	p.subPrefix = prefix
	p.onPrinter = handler
	p.mu.Unlock()
	return p.subscribe(prefix, handler)
}

func (p *RealPublisher) subscribe(prefix string, handler func(printer.Event)) error {
	token := p.client.Subscribe(prefix+"+", 1, func(_ paho.Client, m paho.Message) {
		ev, ok := printer.EventFromTopic(prefix, m.Topic())
		if !ok {
			return
		}
		handler(ev)
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// publish sends now if connected, otherwise buffers for replay.
func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	if !p.connected {
		p.buffer.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.send(topic, qos, retained, payload)
}

func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close drops the printer subscription and disconnects from the broker.
func (p *RealPublisher) Close() error {
	var err error

	p.mu.Lock()
	prefix := p.subPrefix
	connected := p.connected
	pending := p.buffer.len()
	p.mu.Unlock()

	if prefix != "" && connected {
		token := p.client.Unsubscribe(prefix + "+")
		if !token.WaitTimeout(time.Second) {
			err = multierr.Append(err, errors.New("unsubscribe timeout"))
		} else {
			err = multierr.Append(err, token.Error())
		}
	}
	if pending > 0 {
		err = multierr.Append(err, fmt.Errorf("%d buffered messages not sent", pending))
	}

	p.client.Disconnect(1000) // 1 second timeout
	return err
}
