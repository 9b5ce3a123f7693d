package identity

import (
	"context"
	"sync"

	"github.com/angelmondragon/pharmacare-storefront/pkg/clientctx"
	"github.com/angelmondragon/pharmacare-storefront/pkg/logger"
)

const subscriberBuffer = 16

// Listener receives auth events for the browser context it subscribed from.
// session is nil when the event leaves the context signed out.
type Listener func(ctx context.Context, event Event, session *Session)

type droppedCounter interface {
	IncDroppedEvent()
}

type notification struct {
	event   Event
	session *Session
}

type subscriber struct {
	ctx   context.Context
	queue chan notification
	once  sync.Once
}

// hub fans auth events out to the subscribers of a client context. Each
// subscriber drains its own queue on a goroutine so delivery order matches
// emit order and a slow listener never blocks the emitting request.
type hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscriber]struct{}
	logg    *logger.Logger
	dropped droppedCounter
}

func newHub(logg *logger.Logger, dropped droppedCounter) *hub {
	return &hub{
		subs:    make(map[string]map[*subscriber]struct{}),
		logg:    logg,
		dropped: dropped,
	}
}

func (h *hub) subscribe(ctx context.Context, listener Listener) (*subscriber, func()) {
	clientID := clientctx.ID(ctx)
	sub := &subscriber{
		ctx:   context.WithoutCancel(ctx),
		queue: make(chan notification, subscriberBuffer),
	}

	h.mu.Lock()
	if h.subs[clientID] == nil {
		h.subs[clientID] = make(map[*subscriber]struct{})
	}
	h.subs[clientID][sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		for n := range sub.queue {
			listener(sub.ctx, n.event, n.session)
		}
	}()

	unsubscribe := func() {
		sub.once.Do(func() {
			h.mu.Lock()
			delete(h.subs[clientID], sub)
			if len(h.subs[clientID]) == 0 {
				delete(h.subs, clientID)
			}
			close(sub.queue)
			h.mu.Unlock()
		})
	}
	return sub, unsubscribe
}

// emit queues event for every subscriber of the client bound to ctx.
func (h *hub) emit(ctx context.Context, event Event, session *Session) {
	clientID := clientctx.ID(ctx)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[clientID] {
		h.deliver(ctx, sub, notification{event: event, session: session})
	}
}

// deliver must run under h.mu so the queue cannot be closed concurrently.
func (h *hub) deliver(ctx context.Context, sub *subscriber, n notification) {
	select {
	case sub.queue <- n:
	default:
		if h.dropped != nil {
			h.dropped.IncDroppedEvent()
		}
		if h.logg != nil {
			h.logg.Warn(h.logg.WithField(ctx, "event", string(n.event)), "auth event dropped for slow subscriber")
		}
	}
}

func (h *hub) send(ctx context.Context, sub *subscriber, event Event, session *Session) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.subs[clientctx.ID(ctx)][sub]; !ok {
		return
	}
	h.deliver(ctx, sub, notification{event: event, session: session})
}

func (h *hub) count(clientID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[clientID])
}
