package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/huettenzauber/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second

	disconnectQuiesceMillis = 1000

	maxQoS = 2
)

// Presence states published on the status topic.
const (
	stateOnline  = "online"
	stateOffline = "offline"
)

// presence is the retained body of the status topic and the last will.
type presence struct {
	State        string `json:"state"`
	Installation string `json:"installation"`
	ClientID     string `json:"client_id"`
	Reason       string `json:"reason,omitempty"`
	At           string `json:"at"`
}

func presencePayload(installation, clientID, state, reason string) []byte {
	// Only string fields, so Marshal cannot fail.
	data, _ := json.Marshal(presence{
		State:        state,
		Installation: installation,
		ClientID:     clientID,
		Reason:       reason,
		At:           time.Now().UTC().Format(time.RFC3339),
	})
	return data
}

// clientOptions maps the broker section of the config onto paho options.
// The initial connect is tried once; after that paho reconnects on its own
// between Reconnect.InitialDelay and Reconnect.MaxDelay seconds.
func clientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

// setWill makes the broker publish the installation as offline when the
// controller vanishes without a clean disconnect.
func setWill(opts *pahomqtt.ClientOptions, topics Topics, clientID string) {
	will := presencePayload(topics.installation, clientID, stateOffline, "connection_lost")
	opts.SetBinaryWill(topics.Status(), will, 1, true)
}
