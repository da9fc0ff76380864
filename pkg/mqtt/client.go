package mqtt

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"comm-terminal/internal/logger"
)

type Config struct {
	Broker               string
	ClientID             string
	Username             string
	Password             string
	CleanSession         bool
	KeepAlive            int
	ConnectTimeout       int
	AutoReconnect        bool
	MaxReconnectInterval time.Duration
}

type Client struct {
	client mqtt.Client
	config *Config

	mu               sync.Mutex
	onConnect        []func()
	onConnectionLost []func(error)
}

type MessageHandler func(topic string, payload []byte)

func NewClient(config *Config) *Client {
	c := &Client{config: config}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetCleanSession(config.CleanSession)
	opts.SetKeepAlive(time.Duration(config.KeepAlive) * time.Second)
	opts.SetConnectTimeout(time.Duration(config.ConnectTimeout) * time.Second)
	opts.SetAutoReconnect(config.AutoReconnect)
	opts.SetMaxReconnectInterval(config.MaxReconnectInterval)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		logger.Info("Realtime broker connected", zap.String("broker", config.Broker))
		c.mu.Lock()
		handlers := append([]func(){}, c.onConnect...)
		c.mu.Unlock()
		for _, h := range handlers {
			h()
		}
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.Warn("Realtime broker connection lost", zap.Error(err))
		c.mu.Lock()
		handlers := append([]func(error){}, c.onConnectionLost...)
		c.mu.Unlock()
		for _, h := range handlers {
			h(err)
		}
	})

	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info("Reconnecting to realtime broker...")
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// OnConnect registers a callback invoked after every successful (re)connect.
// The paho delivery does not replay events missed while disconnected, so
// subscribers use this hook to trigger a fresh snapshot fetch.
func (c *Client) OnConnect(fn func()) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

// OnConnectionLost registers a callback invoked when the transport drops.
func (c *Client) OnConnectionLost(fn func(error)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnectionLost = append(c.onConnectionLost, fn)
}

func (c *Client) Connect() error {
	logger.Info("Connecting to realtime broker", zap.String("broker", c.config.Broker))

	token := c.client.Connect()
	token.Wait()

	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to realtime broker: %w", err)
	}

	return nil
}

func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})

	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	logger.Debug("Subscribed to topic", zap.String("topic", topic), zap.Uint8("qos", qos))
	return nil
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

func (c *Client) Unsubscribe(topics ...string) error {
	token := c.client.Unsubscribe(topics...)
	token.Wait()
	return token.Error()
}

func (c *Client) Disconnect() {
	c.client.Disconnect(250)
	logger.Info("Disconnected from realtime broker")
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}
