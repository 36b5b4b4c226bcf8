// Package bridge feeds external telemetry onto the pipeline's signal bus.
// The MQTT bridge subscribes one topic per configured signal and writes
// every decoded sample as the signal's latest value.
package bridge

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/prognos-io/prognos/prog"
)

// Options configure the MQTT connection and topic layout.
type Options struct {
	// Broker is the server address, e.g. "tcp://localhost:1883".
	Broker string
	// ClientID defaults to "prognos".
	ClientID string
	Username string
	Password string
	// TopicPrefix is prepended to signal names: a signal "voltage" under
	// prefix "telemetry" subscribes to "telemetry/voltage".
	TopicPrefix string
	// QoS for the subscriptions, default 0.
	QoS byte
	// ConnectTimeout bounds connect and subscribe waits, default 5s.
	ConnectTimeout time.Duration
}

// mqttClient is the slice of paho.Client the bridge needs; tests substitute
// a fake.
type mqttClient interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// MQTT bridges broker topics onto a SignalBus. Payloads may be a bare
// number or a JSON object {"value": 3.85, "ts": ...} with an optional
// timestamp as unix seconds or RFC 3339; samples without a timestamp get the
// arrival time. Undecodable payloads are dropped with a log line, never
// written as zeros.
type MQTT struct {
	client  mqttClient
	bus     *prog.SignalBus
	prefix  string
	qos     byte
	timeout time.Duration
}

// New builds a bridge connected to opts.Broker.
func New(opts Options, bus *prog.SignalBus) *MQTT {
	co := paho.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetCleanSession(true)
	if opts.ClientID == "" {
		opts.ClientID = "prognos"
	}
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		co.SetPassword(opts.Password)
	}
	return newBridge(paho.NewClient(co), opts, bus)
}

func newBridge(client mqttClient, opts Options, bus *prog.SignalBus) *MQTT {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	return &MQTT{
		client:  client,
		bus:     bus,
		prefix:  opts.TopicPrefix,
		qos:     opts.QoS,
		timeout: opts.ConnectTimeout,
	}
}

// Start connects to the broker and subscribes every signal's topic.
func (m *MQTT) Start(signals []string) error {
	token := m.client.Connect()
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("mqtt connect timed out after %s", m.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	for _, signal := range signals {
		topic := m.topic(signal)
		logrus.Debugf("subscribing %q for signal %q", topic, signal)
		token := m.client.Subscribe(topic, m.qos, m.handler(signal))
		if !token.WaitTimeout(m.timeout) {
			return fmt.Errorf("subscribe %q timed out after %s", topic, m.timeout)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("subscribe %q: %w", topic, err)
		}
	}
	return nil
}

// Stop disconnects from the broker.
func (m *MQTT) Stop() {
	m.client.Disconnect(250)
}

func (m *MQTT) topic(signal string) string {
	if m.prefix == "" {
		return signal
	}
	return m.prefix + "/" + signal
}

func (m *MQTT) handler(signal string) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		value, at, err := parsePayload(msg.Payload())
		if err != nil {
			logrus.Debugf("dropping sample for %q: %v", signal, err)
			return
		}
		m.bus.Set(signal, value, at)
	}
}

// parsePayload decodes one telemetry sample.
func parsePayload(payload []byte) (float64, time.Time, error) {
	body := strings.TrimSpace(string(payload))
	if body == "" {
		return 0, time.Time{}, fmt.Errorf("empty payload")
	}

	if !strings.HasPrefix(body, "{") {
		v, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("payload %q is not numeric", body)
		}
		return v, time.Now(), nil
	}

	value := gjson.Get(body, "value")
	if !value.Exists() {
		return 0, time.Time{}, fmt.Errorf("payload has no \"value\" field")
	}
	if value.Type != gjson.Number {
		return 0, time.Time{}, fmt.Errorf("payload field \"value\" is not numeric")
	}

	ts := gjson.Get(body, "ts")
	switch {
	case !ts.Exists():
		return value.Num, time.Now(), nil
	case ts.Type == gjson.Number:
		return value.Num, time.Unix(0, int64(ts.Num*1e9)), nil
	case ts.Type == gjson.String:
		at, err := time.Parse(time.RFC3339Nano, ts.Str)
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("payload field \"ts\": %w", err)
		}
		return value.Num, at, nil
	default:
		return 0, time.Time{}, fmt.Errorf("payload field \"ts\" is neither seconds nor RFC 3339")
	}
}
