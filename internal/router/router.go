// Package router dispatches inbound frames to the reconciler that owns them.
package router

import (
	"go.uber.org/zap"

	"sisi-realtime/internal/wire"
)

type ChatHandler interface {
	HandleNewMessage(wire.NewMessage)
	HandleTyping(wire.Typing)
}

type PaymentHandler interface {
	HandlePaymentRequest(wire.PaymentRequest)
}

type NotificationHandler interface {
	HandleNotification(wire.NotificationPush)
	HandleNotificationsUpdate(wire.NotificationsUpdate)
}

// Handlers groups the destinations. A nil handler turns its frames into
// diagnostics.
type Handlers struct {
	Chat          ChatHandler
	Payments      PaymentHandler
	Notifications NotificationHandler
	// Unrouted, if set, receives every frame no handler accepted.
	Unrouted func(wire.Frame)
}

type Router struct {
	h   Handlers
	log *zap.Logger
}

func New(h Handlers, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{h: h, log: log.Named("router")}
}

// Route must be called from a single goroutine so frames are applied in
// arrival order.
func (r *Router) Route(f wire.Frame) {
	switch v := f.(type) {
	case wire.NewMessage:
		if r.h.Chat != nil {
			r.h.Chat.HandleNewMessage(v)
			return
		}
	case wire.Typing:
		if r.h.Chat != nil {
			r.h.Chat.HandleTyping(v)
			return
		}
	case wire.PaymentRequest:
		if r.h.Payments != nil {
			r.h.Payments.HandlePaymentRequest(v)
			return
		}
	case wire.NotificationPush:
		if r.h.Notifications != nil {
			r.h.Notifications.HandleNotification(v)
			return
		}
	case wire.NotificationsUpdate:
		if r.h.Notifications != nil {
			r.h.Notifications.HandleNotificationsUpdate(v)
			return
		}
	case wire.Unknown:
		r.log.Debug("unknown frame type", zap.String("type", v.Kind), zap.Int("bytes", len(v.Raw)))
		r.unrouted(f)
		return
	case wire.ChatMessage, wire.RefreshNotifications:
		// client-to-server frames echoed back
	case nil:
		return
	}

	r.log.Debug("frame not routed", zap.String("type", f.Type()))
	r.unrouted(f)
}

func (r *Router) unrouted(f wire.Frame) {
	if r.h.Unrouted != nil {
		r.h.Unrouted(f)
	}
}
