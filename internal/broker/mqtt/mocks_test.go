package mqtt

import (
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kkaazzuukkii4/switchbot-controller/config"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/logger"
)

// MockToken implements mqtt.Token for testing
type MockToken struct {
	err  error
	done chan struct{}
}

func NewMockToken(err error) *MockToken {
	t := &MockToken{
		err:  err,
		done: make(chan struct{}),
	}
	close(t.done)
	return t
}

func (t *MockToken) Wait() bool                       { return true }
func (t *MockToken) WaitTimeout(d time.Duration) bool { return true }
func (t *MockToken) Error() error                     { return t.err }
func (t *MockToken) Done() <-chan struct{}            { return t.done }

// MockClient implements mqtt.Client for testing
type MockClient struct {
	connected     atomic.Bool
	connectCalls  atomic.Int64
	connectFunc   func() mqtt.Token
	subscribeFunc func(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token

	mu         sync.Mutex
	subscribed []string
}

func NewMockClient() *MockClient {
	m := &MockClient{}
	m.connectFunc = func() mqtt.Token {
		m.connected.Store(true)
		return NewMockToken(nil)
	}
	m.subscribeFunc = func(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
		return NewMockToken(nil)
	}
	return m
}

func (m *MockClient) Connect() mqtt.Token {
	m.connectCalls.Add(1)
	return m.connectFunc()
}

func (m *MockClient) Disconnect(quiesce uint) {
	m.connected.Store(false)
}

func (m *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return NewMockToken(nil)
}

func (m *MockClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	m.mu.Lock()
	m.subscribed = append(m.subscribed, topic)
	m.mu.Unlock()
	return m.subscribeFunc(topic, qos, callback)
}

func (m *MockClient) SubscribedTopics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subscribed...)
}

func (m *MockClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return NewMockToken(nil)
}

func (m *MockClient) Unsubscribe(topics ...string) mqtt.Token { return NewMockToken(nil) }

func (m *MockClient) AddRoute(topic string, callback mqtt.MessageHandler) {}

func (m *MockClient) IsConnected() bool { return m.connected.Load() }

func (m *MockClient) IsConnectionOpen() bool { return m.connected.Load() }

func (m *MockClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

// MockMessage implements mqtt.Message for testing
type MockMessage struct {
	topic   string
	payload []byte
}

func (m *MockMessage) Duplicate() bool   { return false }
func (m *MockMessage) Qos() byte         { return 0 }
func (m *MockMessage) Retained() bool    { return false }
func (m *MockMessage) Topic() string     { return m.topic }
func (m *MockMessage) MessageID() uint16 { return 1 }
func (m *MockMessage) Payload() []byte   { return m.payload }
func (m *MockMessage) Ack()              {}

func testConfig() *config.Config {
	return &config.Config{
		Broker: config.BrokerConfig{
			Type:      config.BrokerTypeMQTT,
			Endpoint:  "ssl://broker.example.com:8883",
			ClientID:  "test-client",
			KeepAlive: 15,
		},
		Subscriber: config.SubscriberConfig{
			Topic: "switchbot/commands",
		},
	}
}

func testLogger() *logger.Logger {
	log, _ := logger.NewLogger(&config.LogConfig{
		Level:       "error",
		LogToStdout: true,
	})
	return log
}
