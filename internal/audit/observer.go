package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"eldercare-platform/internal/events"
)

const (
	queueSize     = 256
	appendTimeout = 5 * time.Second
)

// Observer is a bus observer that appends session events to the audit
// trail. Appends run on a background goroutine so emitters never wait on
// storage; when the queue is full events are dropped and logged.
type Observer struct {
	svc *Service
	log *slog.Logger

	queue chan Event
	done  chan struct{}
	once  sync.Once

	mu      sync.Mutex
	channel string
	uid     int
}

func NewObserver(svc *Service, log *slog.Logger) *Observer {
	if log == nil {
		log = slog.Default()
	}
	o := &Observer{
		svc:   svc,
		log:   log.With("component", "audit"),
		queue: make(chan Event, queueSize),
		done:  make(chan struct{}),
	}
	go o.run()
	return o
}

// HandleEvent implements events.Observer.
func (o *Observer) HandleEvent(ev events.Event) {
	e := o.toAudit(ev)
	select {
	case o.queue <- e:
	default:
		o.log.Warn("audit queue full, event dropped", "type", e.Type, "channel", e.Channel)
	}
}

// Close stops accepting events and waits for queued appends to finish.
// HandleEvent must not be called after Close.
func (o *Observer) Close() {
	o.once.Do(func() { close(o.queue) })
	<-o.done
}

func (o *Observer) run() {
	defer close(o.done)
	for e := range o.queue {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		if err := o.svc.Append(ctx, e); err != nil {
			o.log.Error("audit append failed", "type", e.Type, "channel", e.Channel, "err", err)
		}
		cancel()
	}
}

// toAudit tracks the session identity from joined/left events so every record
// carries the channel and uid current at emit time.
func (o *Observer) toAudit(ev events.Event) Event {
	o.mu.Lock()
	switch p := ev.Payload.(type) {
	case events.JoinedPayload:
		o.channel, o.uid = p.Channel, p.UID
	case events.RecordingPayload:
		if p.Channel != "" {
			o.channel = p.Channel
		}
	}
	e := Event{Type: string(ev.Name), Channel: o.channel, UID: o.uid, CreatedAt: ev.At}
	if ev.Name == events.Left {
		o.channel, o.uid = "", 0
	}
	o.mu.Unlock()

	if p, ok := ev.Payload.(events.ErrorPayload); ok {
		e.ErrorType = string(p.Type)
		e.Message = p.Message
	}
	if ev.Payload != nil {
		if b, err := json.Marshal(ev.Payload); err == nil {
			e.Metadata = string(b)
		}
	}
	return e
}
