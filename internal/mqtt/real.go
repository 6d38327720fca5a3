package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/alicemirror/PiRotary/internal/notify"
	"github.com/alicemirror/PiRotary/internal/rotary"
)

// queueCapacity bounds the publishes held while the broker is unreachable.
const queueCapacity = 256

// RealPublisher publishes to an actual MQTT broker. Publishes made while
// disconnected are queued and replayed on reconnect.
type RealPublisher struct {
	client paho.Client

	mu    sync.Mutex
	queue *pubQueue

	now func() time.Time
}

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(broker string) (*RealPublisher, error) {
	p := &RealPublisher{
		queue: newPubQueue(queueCapacity),
		now:   time.Now,
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("pirotary").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(p.onConnect)

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

// onConnect replays everything queued while the connection was down.
func (p *RealPublisher) onConnect(client paho.Client) {
	p.mu.Lock()
	backlog := p.queue.flush()
	p.mu.Unlock()

	for _, q := range backlog {
		client.Publish(q.topic, q.qos, q.retained, q.payload)
	}
}

// publish sends immediately when connected, otherwise queues for replay.
func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnected() {
		p.mu.Lock()
		p.queue.add(queuedPub{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishDial sends a dial event at QoS 0: a lost digit is preferable to a
// stalled dial.
func (p *RealPublisher) PublishDial(event rotary.Event) error {
	payload, err := FormatDialPayload(event, p.now())
	if err != nil {
		return fmt.Errorf("format dial payload: %w", err)
	}
	return p.publish(TopicDial, 0, false, payload)
}

// PublishSystem sends a lifecycle event at QoS 1; delivery matters for
// shutdown events.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(TopicSystem, 1, event.Retained, payload)
}

// PublishReport sends the raw 12-byte report wire form at QoS 0.
func (p *RealPublisher) PublishReport(handle int, report notify.Report) error {
	var buf [notify.ReportBytes]byte
	report.Encode(buf[:])
	return p.publish(ReportTopic(handle), 0, false, buf[:])
}

// IsConnected reports the broker connection state.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
