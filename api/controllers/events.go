package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/angelmondragon/pharmacare-storefront/api/responses"
	"github.com/angelmondragon/pharmacare-storefront/internal/accounts"
	pkgerrors "github.com/angelmondragon/pharmacare-storefront/pkg/errors"
	"github.com/angelmondragon/pharmacare-storefront/pkg/logger"
)

const (
	eventsBuffer    = 16
	eventsHeartbeat = 25 * time.Second
)

type authEvent struct {
	Event string            `json:"event"`
	User  *accounts.Session `json:"user"`
}

// EventStreams ends every open auth event stream on Close. http.Server
// does not cancel request contexts on Shutdown, so the server registers Close
// as a shutdown hook.
type EventStreams struct {
	done chan struct{}
	once sync.Once
}

func NewEventStreams() *EventStreams {
	return &EventStreams{done: make(chan struct{})}
}

// Close is safe to call more than once.
func (s *EventStreams) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *EventStreams) closed() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.done
}

// AuthEvents streams auth state changes for the browser context as
// server-sent events until the client disconnects or streams is closed.
// A nil streams never closes.
func AuthEvents(svc accounts.Service, streams *EventStreams, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnsupported, "streaming not supported"))
			return
		}

		ctx := r.Context()
		events := make(chan authEvent, eventsBuffer)
		unsubscribe := svc.OnAuthStateChange(ctx, func(_ context.Context, event string, user *accounts.Session) {
			select {
			case events <- authEvent{Event: event, User: user}:
			case <-ctx.Done():
			default:
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "event", event), "auth event stream full, dropping event")
				}
			}
		})
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		heartbeat := time.NewTicker(eventsHeartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-streams.closed():
				return
			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case evt := <-events:
				if err := writeEvent(w, evt); err != nil {
					if logg != nil {
						logg.Error(ctx, "failed to write auth event", err)
					}
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, evt authEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, payload)
	return err
}
