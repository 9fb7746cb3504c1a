// workers/analytics_worker.go
package workers

import (
	"context"
	"encoding/json"
	"log"

	"engagement-api/services"

	"github.com/ThreeDotsLabs/watermill/message"
)

// AnalyticsWorker drains the in-process event queue and forwards each
// event to the analytics log. It is the only subscriber of the misc
// topic; if it falls behind, publishes buffer in the channel and the
// request path never notices.
type AnalyticsWorker struct {
	events *services.EventPublisher
}

func NewAnalyticsWorker(events *services.EventPublisher) *AnalyticsWorker {
	return &AnalyticsWorker{events: events}
}

func (w *AnalyticsWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Analytics Worker (misc topic → analytics log)…")
	messages, err := w.events.Subscribe(ctx)
	if err != nil {
		log.Printf("❌ analytics subscription failed: %v", err)
		return
	}
	go w.run(ctx, messages)
}

func (w *AnalyticsWorker) run(ctx context.Context, messages <-chan *message.Message) {
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				log.Println("⏹️ Analytics Worker stopped (queue closed)")
				return
			}
			w.handle(msg)
		case <-ctx.Done():
			log.Println("⏹️ Analytics Worker stopped")
			return
		}
	}
}

func (w *AnalyticsWorker) handle(msg *message.Message) {
	defer msg.Ack()

	var event map[string]interface{}
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		log.Printf("⚠️ [ANALYTICS] dropping malformed event %s: %v", msg.UUID, err)
		return
	}
	logType, _ := event["logType"].(string)
	if logType == "" {
		logType = "unknown"
	}
	// structured one-liner; downstream log shipping picks these up
	line, _ := json.Marshal(event)
	log.Printf("[ANALYTICS] %s %s", logType, line)
}
