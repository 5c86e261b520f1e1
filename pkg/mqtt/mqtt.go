// Package mqtt publishes bot activity to an MQTT broker.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/nk521/Complaint-Bot/pkg/logger"
)

// ErrPublishTimeout is returned when the broker does not acknowledge a publish in time
var ErrPublishTimeout = errors.New("mqtt: publish timed out")

// client is the part of the paho client the publisher needs
type client interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Options configures a Publisher
type Options struct {
	Host     string
	Port     string
	User     string
	Password string
	ClientID string
	Topic    string
	Timeout  time.Duration
}

// Publisher sends JSON messages below a base topic
type Publisher struct {
	client  client
	topic   string
	timeout time.Duration
}

// CommandEvent describes one executed command
type CommandEvent struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	Module    string    `json:"module"`
	Args      []string  `json:"args,omitempty"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Timestamp time.Time `json:"timestamp"`
}

// NewCommandEvent stamps a command event with a fresh id and the current time
func NewCommandEvent(command, module, chatID, senderID string, args []string) CommandEvent {
	return CommandEvent{
		ID:        uuid.NewString(),
		Command:   command,
		Module:    module,
		Args:      args,
		ChatID:    chatID,
		SenderID:  senderID,
		Timestamp: time.Now().UTC(),
	}
}

// Connect creates a publisher connected to the broker. The client keeps retrying
// in the background when the first attempt fails.
func Connect(opts Options) *Publisher {
	clientID := opts.ClientID
	if clientID == "" {
		clientID = "complaintbot"
	}
	uniqueID := fmt.Sprintf("%s_%s", clientID, uuid.NewString())

	co := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%s", opts.Host, opts.Port)).
		SetClientID(uniqueID).
		SetUsername(opts.User).
		SetPassword(opts.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			logger.Success(fmt.Sprintf("Connected to MQTT broker as %s", clientID), "MQTT")
		}).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			logger.Error(fmt.Sprintf("MQTT connection lost: %v", err), "MQTT")
		})

	c := mqtt.NewClient(co)
	token := c.Connect()
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		logger.Error(fmt.Sprintf("MQTT connection error: %v", token.Error()), "MQTT")
	}

	return newPublisher(c, opts.Topic, opts.Timeout)
}

func newPublisher(c client, topic string, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{client: c, topic: strings.TrimSuffix(topic, "/"), timeout: timeout}
}

// IsConnected reports whether the broker connection is up
func (p *Publisher) IsConnected() bool {
	return p.client != nil && p.client.IsConnected()
}

// Topic returns the full topic for a sub-topic
func (p *Publisher) Topic(sub string) string {
	if sub == "" {
		return p.topic
	}
	return p.topic + "/" + sub
}

// Publish sends payload as JSON to the sub-topic
func (p *Publisher) Publish(ctx context.Context, sub string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mqtt: marshal payload: %w", err)
	}

	token := p.client.Publish(p.Topic(sub), 0, false, data)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.timeout):
		return ErrPublishTimeout
	}
}

// PublishCommand publishes a command event below "<topic>/<module>/<command>"
func (p *Publisher) PublishCommand(ctx context.Context, ev CommandEvent) error {
	return p.Publish(ctx, ev.Module+"/"+ev.Command, ev)
}

// Close disconnects from the broker
func (p *Publisher) Close() {
	if p.client == nil || !p.client.IsConnected() {
		logger.Warn("MQTT client was not connected", "MQTT")
		return
	}
	p.client.Disconnect(250)
	logger.System("MQTT connection closed", "MQTT")
}
