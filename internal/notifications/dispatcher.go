package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"murmur/internal/models"
	"murmur/internal/observability"
	"murmur/internal/repository"
)

// Dispatcher consumes engine events on a bounded queue and fans them out:
// every event is published to the content item's live channel, and events
// that concern a specific user additionally write an inbox row and publish to
// that user's channel. Emit never blocks the caller; when the queue is full
// the event is dropped and counted.
type Dispatcher struct {
	events        chan models.CommentEvent
	notifier      *Notifier
	notifications repository.NotificationRepository

	wg   sync.WaitGroup
	once sync.Once
}

func NewDispatcher(notifier *Notifier, notifications repository.NotificationRepository, buffer, workers int) *Dispatcher {
	if buffer < 1 {
		buffer = 256
	}
	if workers < 1 {
		workers = 2
	}
	d := &Dispatcher{
		events:        make(chan models.CommentEvent, buffer),
		notifier:      notifier,
		notifications: notifications,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Emit queues an event for delivery. Non-blocking: a full queue drops the
// event rather than stalling the write path.
func (d *Dispatcher) Emit(event models.CommentEvent) {
	select {
	case d.events <- event:
	default:
		observability.FanoutEvents.WithLabelValues(string(event.Type), "dropped").Inc()
		slog.Warn("fan-out queue full, dropping event",
			slog.String("event_type", string(event.Type)),
			slog.Uint64("comment_id", uint64(event.CommentID)))
	}
}

// Shutdown stops accepting events and waits for queued ones to drain, or for
// ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.once.Do(func() { close(d.events) })

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for event := range d.events {
		d.deliver(event)
	}
}

// deliver is best effort end to end: a failed publish or inbox write is
// logged and counted, never retried into the write path.
func (d *Dispatcher) deliver(event models.CommentEvent) {
	ctx := context.Background()

	payload, err := json.Marshal(event)
	if err != nil {
		observability.FanoutEvents.WithLabelValues(string(event.Type), "error").Inc()
		slog.Error("failed to marshal comment event", slog.Any("error", err))
		return
	}

	outcome := "delivered"
	if err := d.notifier.PublishItem(ctx, event.ContentItemID, string(payload)); err != nil {
		outcome = "error"
		slog.Warn("failed to publish item event",
			slog.Uint64("content_item_id", uint64(event.ContentItemID)), slog.Any("error", err))
	}

	if event.Type == models.EventCommentDeleted {
		if err := d.notifier.PublishGlobal(ctx, string(payload)); err != nil {
			outcome = "error"
			slog.Warn("failed to publish global event", slog.Any("error", err))
		}
	}

	if recipient, notifType, ok := recipientFor(event); ok {
		notification := &models.Notification{
			RecipientID: recipient,
			Type:        notifType,
			Payload:     string(payload),
		}
		if d.notifications != nil {
			if err := d.notifications.Create(ctx, notification); err != nil {
				outcome = "error"
				slog.Warn("failed to store notification",
					slog.Uint64("recipient_id", uint64(recipient)), slog.Any("error", err))
			}
		}
		if err := d.notifier.PublishUser(ctx, recipient, string(payload)); err != nil {
			outcome = "error"
			slog.Warn("failed to publish user event",
				slog.Uint64("recipient_id", uint64(recipient)), slog.Any("error", err))
		}
	}

	observability.FanoutEvents.WithLabelValues(string(event.Type), outcome).Inc()
}

// recipientFor picks the user a personal notification goes to. Actors never
// get notified about their own actions.
func recipientFor(event models.CommentEvent) (uint, models.NotificationType, bool) {
	switch event.Type {
	case models.EventCommentCreated:
		if event.ParentAuthorID != 0 && event.ParentAuthorID != event.ActorID {
			return event.ParentAuthorID, models.NotifyReply, true
		}
	case models.EventCommentLiked:
		if event.CommentAuthor != 0 && event.CommentAuthor != event.ActorID {
			return event.CommentAuthor, models.NotifyCommentLiked, true
		}
	}
	return 0, "", false
}
