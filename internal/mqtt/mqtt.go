// Package mqtt publishes anonymized research events to an MQTT broker.
package mqtt

import (
	"context"
	"time"

	"github.com/oncoderma/oncoderma-go/internal/conf"
)

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends a message to the specified topic on the MQTT broker.
	Publish(ctx context.Context, topic string, payload []byte) error

	// IsConnected returns true if the client is currently connected to the MQTT broker.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // Default topic for publishing messages
	Retain   bool   // true to retain messages at the broker

	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// Default timeouts
const (
	DefaultConnectTimeout    = 30 * time.Second
	DefaultPublishTimeout    = 10 * time.Second
	DefaultDisconnectTimeout = 250 * time.Millisecond
)

// ConfigFromSettings builds a client configuration from the research settings.
func ConfigFromSettings(settings *conf.Settings) Config {
	clientID := settings.Main.Name
	if clientID == "" {
		clientID = "oncoderma"
	}
	m := settings.Research.MQTT
	return Config{
		Broker:            m.Broker,
		ClientID:          clientID,
		Username:          m.Username,
		Password:          m.Password,
		Topic:             m.Topic,
		Retain:            m.Retain,
		ConnectTimeout:    DefaultConnectTimeout,
		PublishTimeout:    DefaultPublishTimeout,
		DisconnectTimeout: DefaultDisconnectTimeout,
	}
}
