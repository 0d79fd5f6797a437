package events

import (
	"context"
	"fmt"

	"tapflow/mqtt"
)

// MQTT publishes events under the node's status topic.
type MQTT struct {
	client *mqtt.Client
	topic  string
}

// NewMQTT publishes to tapflow/status/node/<client id>/dwell.
func NewMQTT(client *mqtt.Client) *MQTT {
	return &MQTT{
		client: client,
		topic:  StatusTopic(client.ClientID(), "dwell"),
	}
}

// StatusTopic returns the status topic for a node.
func StatusTopic(clientID, leaf string) string {
	return fmt.Sprintf("tapflow/status/node/%s/%s", clientID, leaf)
}

// Publish implements Publisher.
func (p *MQTT) Publish(ctx context.Context, e Event) error {
	payload, err := e.Marshal()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.client.Publish(p.topic, payload)
}

// Close implements Publisher. The client belongs to the caller and is
// left connected.
func (p *MQTT) Close() {}
