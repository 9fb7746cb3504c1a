// services/events.go
package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// MiscTopic carries all analytics events (register, login, mission
// steps, ...). Consumers are best-effort; nothing in the request path
// waits on them.
const MiscTopic = "misc"

type EventPublisher struct {
	pubSub *gochannel.GoChannel
}

func NewEventPublisher() *EventPublisher {
	ps := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, watermill.NewStdLogger(false, false))
	return &EventPublisher{pubSub: ps}
}

// Publish is fire-and-forget: the payload is handed to the in-process
// queue on a separate goroutine and failures are logged, never
// returned. A nil publisher is a no-op so tests can skip wiring it.
func (p *EventPublisher) Publish(logType string, payload map[string]interface{}) {
	if p == nil {
		return
	}
	body := map[string]interface{}{"logType": logType}
	for k, v := range payload {
		if v == nil || v == "" {
			continue
		}
		body[k] = v
	}
	data, err := json.Marshal(body)
	if err != nil {
		log.Printf("⚠️ event %s not serializable: %v", logType, err)
		return
	}
	msg := message.NewMessage(uuid.NewString(), data)
	go func() {
		if err := p.pubSub.Publish(MiscTopic, msg); err != nil {
			log.Printf("⚠️ event publish failed (%s): %v", logType, err)
		}
	}()
}

func (p *EventPublisher) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return p.pubSub.Subscribe(ctx, MiscTopic)
}

func (p *EventPublisher) Close() error {
	if p == nil {
		return nil
	}
	return p.pubSub.Close()
}
