package sensors

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"boilerctl/internal/config"
	"boilerctl/internal/logger"
	"boilerctl/internal/models"
)

const (
	connectTimeout   = 10 * time.Second
	subscribeTimeout = 5 * time.Second
	reconnectRetry   = 5 * time.Second
)

// Subscriber feeds the snapshot store from an MQTT sensor bus. Each
// channel publishes on its own subtopic under the configured root, e.g.
// boiler/sensors/supply carrying a plain decimal °C payload. Connection
// state is mirrored into the snapshot's CommOK flag so staleness and
// transport loss are visible to the same consumers.
type Subscriber struct {
	store  *SnapshotStore
	log    *logger.Logger
	client paho.Client
	topic  string
}

// NewSubscriber connects to the broker and subscribes to the sensor
// topic. The returned subscriber keeps itself subscribed across
// reconnects.
func NewSubscriber(cfg config.Config, store *SnapshotStore, log *logger.Logger) (*Subscriber, error) {
	s := &Subscriber{
		store: store,
		log:   log,
		topic: cfg.MQTT.SensorTopic,
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.MQTT.BrokerURL).
		SetClientID(cfg.MQTT.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(reconnectRetry).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(s.onConnectionLost)
	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}

	s.client = paho.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return s, nil
}

// onConnect runs on every (re)connect; the default clean session drops
// subscriptions, so resubscribing here keeps the feed alive.
func (s *Subscriber) onConnect(client paho.Client) {
	token := client.Subscribe(s.topic, 0, s.handleMessage)
	if !token.WaitTimeout(subscribeTimeout) {
		s.log.Errorf("subscribe to %s timed out", s.topic)
		return
	}
	if err := token.Error(); err != nil {
		s.log.Errorf("subscribe to %s: %v", s.topic, err)
		return
	}
	s.store.SetCommOK(true)
	s.log.Infof("sensor bus connected, subscribed to %s", s.topic)
}

func (s *Subscriber) onConnectionLost(_ paho.Client, err error) {
	s.store.SetCommOK(false)
	s.log.Warnf("sensor bus connection lost: %v", err)
}

func (s *Subscriber) handleMessage(_ paho.Client, msg paho.Message) {
	s.applyReading(msg.Topic(), msg.Payload(), time.Now())
}

// applyReading routes one message into the store by topic suffix.
// Unparseable temperature payloads are written as TempInvalid rather
// than dropped: a garbled sensor must count as a faulted channel, not as
// a channel frozen at its last good value.
func (s *Subscriber) applyReading(topic string, payload []byte, now time.Time) {
	suffix := topic
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		suffix = topic[i+1:]
	}
	text := strings.TrimSpace(string(payload))

	var ch Channel
	switch suffix {
	case "supply":
		ch = ChannelBoilerSupply
	case "return":
		ch = ChannelBoilerReturn
	case "tank":
		ch = ChannelTank
	case "outside":
		ch = ChannelOutside
	case "inside":
		ch = ChannelInside
	case "pressure":
		value := models.PressureInvalid
		if bar, err := strconv.ParseFloat(text, 64); err == nil {
			value = models.PressureFromBar(bar)
		} else {
			s.log.Warnf("bad pressure payload %q: %v", text, err)
		}
		if err := s.store.SetPressure(value, now); err != nil {
			s.log.Warnf("pressure reading dropped: %v", err)
		}
		return
	case "estop":
		engaged, err := strconv.ParseBool(text)
		if err != nil {
			// Refuse to guess: an unreadable stop input is treated
			// as engaged.
			s.log.Errorf("bad emergency-stop payload %q: %v", text, err)
			engaged = true
		}
		if err := s.store.SetEmergencyStop(engaged, now); err != nil {
			s.log.Warnf("emergency-stop reading dropped: %v", err)
		}
		return
	default:
		s.log.Debugf("ignoring unknown sensor topic %s", topic)
		return
	}

	value := models.TempInvalid
	if c, err := strconv.ParseFloat(text, 64); err == nil {
		value = models.TempFromCelsius(c)
	} else {
		s.log.Warnf("bad %s payload %q: %v", ch, text, err)
	}
	if err := s.store.SetTemperature(ch, value, now); err != nil {
		s.log.Warnf("%s reading dropped: %v", ch, err)
	}
}

// Close disconnects from the broker and marks the transport down.
func (s *Subscriber) Close() error {
	s.store.SetCommOK(false)
	s.client.Disconnect(1000)
	return nil
}
