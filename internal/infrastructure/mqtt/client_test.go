package mqtt

import (
	"errors"
	"testing"

	"github.com/nerrad567/esp-rfid-core/internal/infrastructure/config"
)

// testMQTTConfig returns a minimal valid MQTT configuration for tests.
// No broker is contacted; these tests exercise validation and option
// building only.
func testMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "broker.local",
			Port:     1883,
			ClientID: "test-client",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     60,
			MaxAttempts:  0,
		},
	}
}

// newDisconnectedClient builds a Client without connecting to a broker.
// Useful for exercising the not-connected error paths.
func newDisconnectedClient(t *testing.T) *Client {
	t.Helper()
	cfg := testMQTTConfig()
	return &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
	}
}

func TestPublish_Validation(t *testing.T) {
	c := newDisconnectedClient(t)

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "/esprfid/cmd", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "/esprfid/cmd", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "/esprfid/cmd", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := newDisconnectedClient(t)

	noop := func(topic string, payload []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		wantErr error
	}{
		{"empty topic", "", 1, noop, ErrInvalidTopic},
		{"invalid qos", "/esprfid/+/send", 3, noop, ErrInvalidQoS},
		{"nil handler", "/esprfid/+/send", 1, nil, ErrSubscribeFailed},
		{"not connected", "/esprfid/+/send", 1, noop, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Subscribe(tt.topic, tt.qos, tt.handler)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscriptionTracking(t *testing.T) {
	c := newDisconnectedClient(t)

	if c.SubscriptionCount() != 0 {
		t.Errorf("new client should have 0 subscriptions, got %d", c.SubscriptionCount())
	}

	// Track directly since there is no broker in tests.
	c.subMu.Lock()
	c.subscriptions["/esprfid/+/send"] = subscription{
		topic: "/esprfid/+/send",
		qos:   1,
	}
	c.subMu.Unlock()

	if !c.HasSubscription("/esprfid/+/send") {
		t.Error("HasSubscription should report tracked topic")
	}
	if c.HasSubscription("/esprfid/+/tag") {
		t.Error("HasSubscription should not report untracked topic")
	}
	if c.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", c.SubscriptionCount())
	}
}
