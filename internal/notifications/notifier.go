// Package notifications delivers comment events to subscribers: live
// websocket streams per content item and a persistent per-user inbox.
package notifications

import (
	"context"
	"log"
	"runtime/debug"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Notifier publishes comment event payloads into Redis channels. A nil Redis
// client turns every publish into a no-op so single-node deployments work
// without Redis.
type Notifier struct {
	rdb *redis.Client
}

func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishItem sends a payload to the channel for one content item's thread.
func (n *Notifier) PublishItem(ctx context.Context, itemID uint, payload string) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, ItemChannel(itemID), payload).Err()
}

// PublishUser sends a payload to a single user's notification channel.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, payload string) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, UserChannel(userID), payload).Err()
}

// PublishGlobal sends a payload to every connected subscriber.
func (n *Notifier) PublishGlobal(ctx context.Context, payload string) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, GlobalChannel, payload).Err()
}

// StartSubscriber subscribes to the comment channels and calls onMessage for
// each incoming message. A panicking handler is logged and the subscription
// keeps running.
func (n *Notifier) StartSubscriber(ctx context.Context, onMessage func(channel, payload string)) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, "comments:item:*", "comments:user:*", GlobalChannel)
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in comment subscriber: %v\n%s", r, debug.Stack())
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

// GlobalChannel carries events every subscriber needs, such as deletions.
const GlobalChannel = "comments:global"

// ItemChannel derives the Redis channel name for a content item's thread.
func ItemChannel(itemID uint) string {
	return "comments:item:" + strconv.FormatUint(uint64(itemID), 10)
}

// UserChannel derives the Redis channel name for a user's notifications.
func UserChannel(userID uint) string {
	return "comments:user:" + strconv.FormatUint(uint64(userID), 10)
}
