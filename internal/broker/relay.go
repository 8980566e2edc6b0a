// Package broker relays websocket frames between backend instances over
// Redis pub/sub, so a user connected to one instance receives frames
// produced on another.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"sisi-realtime/internal/hub"
)

const channelPrefix = "sisi:user:"

type envelope struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

// Relay is a hub.Fanout that delivers locally and publishes for the other
// instances.
type Relay struct {
	rdb   *redis.Client
	local hub.Fanout
	id    string
}

func NewRelay(rdb *redis.Client, local hub.Fanout) *Relay {
	return &Relay{rdb: rdb, local: local, id: uuid.NewString()}
}

func channelFor(userID string) string { return channelPrefix + userID }

func (r *Relay) SendToUser(userID string, message []byte) {
	r.local.SendToUser(userID, message)

	data, err := json.Marshal(envelope{Origin: r.id, Payload: message})
	if err != nil {
		log.Printf("relay: encode: %v", err)
		return
	}
	if err := r.rdb.Publish(context.Background(), channelFor(userID), data).Err(); err != nil {
		log.Printf("relay: publish to %s: %v", userID, err)
	}
}

// Run consumes frames published by other instances until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("relay: subscription closed")
			}
			r.deliver(msg.Channel, msg.Payload)
		}
	}
}

func (r *Relay) deliver(channel, payload string) {
	userID := strings.TrimPrefix(channel, channelPrefix)
	if userID == "" || userID == channel {
		return
	}
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		log.Printf("relay: decode: %v", err)
		return
	}
	if env.Origin == r.id || len(env.Payload) == 0 {
		return
	}
	r.local.SendToUser(userID, env.Payload)
}
