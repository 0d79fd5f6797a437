package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// publishTimeout bounds how long a publish may take to reach the broker.
const publishTimeout = 2 * time.Second

// ErrNotConnected is returned by Publish while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt: not connected")

// Client wraps the MQTT client for status publishing.
type Client struct {
	client   paho.Client
	clientID string
	enabled  bool
}

// Config holds MQTT connection settings.
type Config struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

// New creates a new MQTT client. Returns a disabled no-op client if host is empty.
func New(cfg Config, clientID string) (*Client, error) {
	c := &Client{clientID: clientID}

	if cfg.Host == "" {
		log.Info("MQTT disabled (no host configured)")
		return c, nil
	}
	c.enabled = true

	var broker string
	var tlsConfig *tls.Config

	if cfg.CACert != "" || cfg.ClientCert != "" {
		if cfg.Port == 0 {
			cfg.Port = 8883
		}
		broker = fmt.Sprintf("ssl://%s:%d", cfg.Host, cfg.Port)

		var err error
		tlsConfig, err = buildTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("build TLS config: %w", err)
		}
	} else {
		if cfg.Port == 0 {
			cfg.Port = 1883
		}
		broker = fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)
		log.Info("MQTT using non-TLS connection")
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetKeepAlive(60 * time.Second).
		SetConnectionLostHandler(c.handleConnectionLost).
		SetOnConnectHandler(c.handleConnect)

	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}

	c.client = paho.NewClient(opts)

	paho.ERROR = pahoLogger{log.ErrorLevel}
	paho.CRITICAL = pahoLogger{log.ErrorLevel}
	paho.WARN = pahoLogger{log.WarnLevel}

	return c, nil
}

func buildTLSConfig(cfg Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	if cfg.CACert != "" {
		caCert, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates in %s", cfg.CACert)
		}
		tlsConfig.RootCAs = caPool
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Connect starts connecting to the broker. With connect retry enabled the
// client keeps retrying in the background, so an unreachable broker does not
// block startup.
func (c *Client) Connect() error {
	if !c.enabled {
		return nil
	}
	token := c.client.Connect()
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return fmt.Errorf("connect: %w", token.Error())
	}
	return nil
}

// Disconnect disconnects from the MQTT broker. No-op if disabled.
func (c *Client) Disconnect() {
	if !c.enabled || c.client == nil {
		return
	}
	c.client.Disconnect(250)
}

// Publish sends payload to topic at QoS 0 without waiting for the broker.
// While the connection is down the message is dropped and ErrNotConnected
// returned. No-op if disabled.
func (c *Client) Publish(topic string, payload []byte) error {
	if !c.enabled {
		return nil
	}
	if !c.client.IsConnectionOpen() {
		return fmt.Errorf("publish %s: %w", topic, ErrNotConnected)
	}
	token := c.client.Publish(topic, 0, false, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			log.Warnf("MQTT publish %s: timed out", topic)
			return
		}
		if err := token.Error(); err != nil {
			log.Warnf("MQTT publish %s: %v", topic, err)
		}
	}()
	return nil
}

// ClientID returns the id the client connects with.
func (c *Client) ClientID() string {
	return c.clientID
}

// Enabled returns whether MQTT is enabled.
func (c *Client) Enabled() bool {
	return c.enabled
}

func (c *Client) handleConnect(client paho.Client) {
	log.Info("MQTT connection established")
}

func (c *Client) handleConnectionLost(client paho.Client, err error) {
	log.Warnf("MQTT connection lost: %v", err)
}

// pahoLogger routes paho's internal logging to logrus at a fixed level.
type pahoLogger struct {
	level log.Level
}

func (l pahoLogger) Println(v ...interface{}) {
	log.StandardLogger().Log(l.level, "MQTT: "+strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (l pahoLogger) Printf(format string, v ...interface{}) {
	log.StandardLogger().Logf(l.level, "MQTT: "+format, v...)
}
