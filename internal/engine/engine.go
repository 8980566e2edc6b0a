// Package engine owns one realtime session: the transport, the router and
// the reconcilers, all driven from a single event loop goroutine.
package engine

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"sisi-realtime/internal/api"
	"sisi-realtime/internal/chatstate"
	"sisi-realtime/internal/deeplink"
	"sisi-realtime/internal/identity"
	"sisi-realtime/internal/model"
	"sisi-realtime/internal/notice"
	"sisi-realtime/internal/notify"
	"sisi-realtime/internal/router"
	"sisi-realtime/internal/transport"
	"sisi-realtime/internal/wire"
)

var (
	ErrClosed         = errors.New("engine: closed")
	ErrNotStarted     = errors.New("engine: no active session")
	ErrAlreadyStarted = errors.New("engine: session already active")
	ErrUnknownChat    = errors.New("engine: unknown chat")
	ErrNoOpenChat     = errors.New("engine: no chat is open")
	ErrNothingToSend  = errors.New("engine: nothing to send")
)

const (
	connectionErrorText = "Connection error. Please refresh the page."
	sessionExpiredText  = "Your session has expired. Please log in again."
)

// Backend is the part of the REST client the engine calls.
type Backend interface {
	Login(ctx context.Context, username, password string) (api.AuthResult, error)
	SetToken(token string)
	ListChats(ctx context.Context) ([]model.ChatSummary, error)
	ListMessages(ctx context.Context, chatID string) ([]model.Message, error)
	ListFriends(ctx context.Context) ([]model.User, error)
	ListNotifications(ctx context.Context) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	AddFriend(ctx context.Context, username string) error
	AcceptFriend(ctx context.Context, fromUserID string) error
	DeclineFriend(ctx context.Context, fromUserID string) error
	Suggestions(ctx context.Context, message, chatContext string) ([]string, error)
}

// Transport is the session connection; *transport.Transport satisfies it.
type Transport interface {
	Open(userID, token string) error
	Close()
	Send(f wire.Frame) error
	Frames() <-chan wire.Frame
	Events() <-chan transport.Event
	Session() transport.Session
}

type Options struct {
	Backend   Backend
	Transport Transport
	Notices   notice.Sink
	// Location is checked for an add-friend token when a session starts.
	Location     deeplink.Location
	TypingWindow time.Duration
	Logger       *zap.Logger
	Clock        func() time.Time
}

type Snapshot struct {
	User          model.User
	Connection    transport.Session
	Chat          chatstate.Snapshot
	Notifications []model.Notification
	UnreadCount   int
	Friends       []model.User
}

type Engine struct {
	opts    Options
	log     *zap.Logger
	backend Backend
	conn    Transport
	notices notice.Sink

	tasks     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Everything below is owned by the loop goroutine.
	active        bool
	gen           uint64
	ctx           context.Context
	cancel        context.CancelFunc
	user          model.User
	chats         *chatstate.State
	notes         *notify.State
	friends       []model.User
	router        *router.Router
	flow          *deeplink.Flow
	connErrShown  bool
	everConnected bool
	refreshing    bool
	subs          map[int]chan Snapshot
	nextSub       int
}

func New(opts Options) *Engine {
	if opts.Notices == nil {
		opts.Notices = notice.Discard
	}
	if opts.TypingWindow <= 0 {
		opts.TypingWindow = chatstate.DefaultTypingWindow
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		opts:    opts,
		log:     log.Named("engine"),
		backend: opts.Backend,
		conn:    opts.Transport,
		notices: opts.Notices,
		tasks:   make(chan func()),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		subs:    make(map[int]chan Snapshot),
	}
	e.reset()
	go e.loop()
	return e
}

// Close ends any active session and stops the loop.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		_ = e.call(context.Background(), func() { e.endSession() })
		close(e.quit)
	})
	<-e.done
}

func (e *Engine) loop() {
	defer close(e.done)

	tick := e.opts.TypingWindow / 5
	if tick > time.Second {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-e.quit:
			return
		case fn := <-e.tasks:
			fn()
		case f := <-e.conn.Frames():
			if !e.active {
				continue
			}
			e.router.Route(f)
			e.publish()
		case ev := <-e.conn.Events():
			if !e.active {
				continue
			}
			e.handleTransportEvent(ev)
			e.publish()
		case <-ticker.C:
			if e.active && e.chats.Expire(e.opts.Clock()) {
				e.publish()
			}
		}
	}
}

// call runs fn on the loop and waits for it.
func (e *Engine) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}
	select {
	case e.tasks <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.quit:
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-e.quit:
		return ErrClosed
	}
}

// post queues fn on the loop without waiting.
func (e *Engine) post(fn func()) {
	select {
	case e.tasks <- fn:
	case <-e.quit:
	}
}

// background runs work off the loop and applies its result on the loop,
// unless the session it was started for has ended.
func (e *Engine) background(work func(ctx context.Context) func()) {
	gen, ctx := e.gen, e.ctx
	go func() {
		apply := work(ctx)
		if apply == nil {
			return
		}
		e.post(func() {
			if !e.active || e.gen != gen {
				return
			}
			apply()
			e.publish()
		})
	}()
}

func (e *Engine) reset() {
	e.user = model.User{}
	e.chats = chatstate.New(model.User{}, e.opts.TypingWindow)
	e.notes = notify.New()
	e.friends = nil
	e.connErrShown = false
	e.everConnected = false
	e.refreshing = false
	h := &handlers{e: e}
	e.router = router.New(router.Handlers{Chat: h, Payments: h, Notifications: h}, e.log)
}

// Login authenticates against the backend and starts a session.
func (e *Engine) Login(ctx context.Context, username, password string) (model.User, error) {
	res, err := e.backend.Login(ctx, username, password)
	if err != nil {
		return model.User{}, err
	}
	if err := e.Start(ctx, res.User, res.AccessToken); err != nil {
		return model.User{}, err
	}
	return res.User, nil
}

// Start begins a session for an already authenticated user.
func (e *Engine) Start(ctx context.Context, user model.User, token string) error {
	var err error
	callErr := e.call(ctx, func() {
		if e.active {
			err = ErrAlreadyStarted
			return
		}
		e.backend.SetToken(token)
		if err = e.conn.Open(user.ID, token); err != nil {
			e.backend.SetToken("")
			return
		}

		e.reset()
		e.active = true
		e.gen++
		e.ctx, e.cancel = context.WithCancel(context.Background())
		e.user = user
		e.chats = chatstate.New(user, e.opts.TypingWindow)

		gen := e.gen
		e.flow = deeplink.NewFlow(e.backend, e.notices, e.opts.Location, func(identity.Token) {
			e.post(func() {
				if e.active && e.gen == gen {
					e.afterFriendRequestSent()
				}
			})
		})

		e.log.Info("session started", zap.String("user_id", user.ID), zap.Uint64("session", e.gen))
		e.refreshChats()
		e.refreshNotifications()
		e.refreshFriends()
		e.redeemLocation()
		e.publish()
	})
	if callErr != nil {
		return callErr
	}
	return err
}

// Logout tears the session down. Pending completions of that session are
// discarded when they arrive.
func (e *Engine) Logout() error {
	return e.call(context.Background(), func() { e.endSession() })
}

func (e *Engine) endSession() {
	if !e.active {
		return
	}
	e.log.Info("session ended", zap.String("user_id", e.user.ID), zap.Uint64("session", e.gen))
	e.active = false
	e.gen++
	e.cancel()
	e.conn.Close()
	e.drain()
	e.backend.SetToken("")
	e.flow = nil
	e.reset()
	e.publish()
}

// drain discards frames and events the transport delivered before Close.
func (e *Engine) drain() {
	for {
		select {
		case <-e.conn.Frames():
		case <-e.conn.Events():
		default:
			return
		}
	}
}

func (e *Engine) OpenChat(ctx context.Context, chatID string) error {
	var err error
	callErr := e.call(ctx, func() {
		if !e.active {
			err = ErrNotStarted
			return
		}
		if !e.chats.OpenChat(chatID) {
			err = ErrUnknownChat
			return
		}
		e.background(func(ctx context.Context) func() {
			msgs, lerr := e.backend.ListMessages(ctx, chatID)
			if lerr != nil {
				e.log.Warn("load messages failed", zap.String("chat_id", chatID), zap.Error(lerr))
				return nil
			}
			return func() { e.chats.ReplaceMessages(chatID, msgs) }
		})
		e.publish()
	})
	if callErr != nil {
		return callErr
	}
	return err
}

// SendMessage posts content to the open chat. Reply suggestions for it are
// fetched in the background.
func (e *Engine) SendMessage(ctx context.Context, content string) error {
	var err error
	callErr := e.call(ctx, func() {
		if !e.active {
			err = ErrNotStarted
			return
		}
		if e.chats.OpenChatID() == "" {
			err = ErrNoOpenChat
			return
		}
		e.chats.SetDraft(content)
		msg, ok := e.chats.ComposeSend()
		if !ok {
			err = ErrNothingToSend
			return
		}
		if err = e.conn.Send(msg); err != nil {
			e.log.Debug("send not delivered", zap.String("chat_id", msg.ChatID), zap.Error(err))
		}
		e.fetchSuggestions(msg.ChatID, msg.Content)
		e.publish()
	})
	if callErr != nil {
		return callErr
	}
	return err
}

func (e *Engine) fetchSuggestions(chatID, content string) {
	e.background(func(ctx context.Context) func() {
		list, err := e.backend.Suggestions(ctx, content, "")
		if err != nil {
			e.log.Debug("suggestions failed", zap.Error(err))
			return nil
		}
		return func() { e.chats.SetSuggestions(chatID, list) }
	})
}

func (e *Engine) SetTyping(ctx context.Context, typing bool) error {
	var err error
	callErr := e.call(ctx, func() {
		if !e.active {
			err = ErrNotStarted
			return
		}
		chatID := e.chats.OpenChatID()
		if chatID == "" {
			err = ErrNoOpenChat
			return
		}
		err = e.conn.Send(wire.Typing{ChatID: chatID, IsTyping: typing})
	})
	if callErr != nil {
		return callErr
	}
	return err
}

func (e *Engine) MarkRead(ctx context.Context, notificationID string) error {
	var err error
	callErr := e.call(ctx, func() {
		if !e.active {
			err = ErrNotStarted
			return
		}
		if !e.notes.MarkRead(notificationID) {
			return
		}
		e.background(func(ctx context.Context) func() {
			if merr := e.backend.MarkNotificationRead(ctx, notificationID); merr != nil {
				e.log.Warn("mark read failed", zap.String("notification_id", notificationID), zap.Error(merr))
			}
			return nil
		})
		e.publish()
	})
	if callErr != nil {
		return callErr
	}
	return err
}

func (e *Engine) AcceptFriendRequest(ctx context.Context, notificationID string) error {
	return e.resolve(ctx, notificationID, notify.Accept)
}

func (e *Engine) DeclineFriendRequest(ctx context.Context, notificationID string) error {
	return e.resolve(ctx, notificationID, notify.Decline)
}

func (e *Engine) resolve(ctx context.Context, notificationID string, r notify.Resolution) error {
	var err error
	callErr := e.call(ctx, func() {
		if !e.active {
			err = ErrNotStarted
			return
		}
		var p notify.Pending
		if p, err = e.notes.BeginResolve(notificationID); err != nil {
			return
		}
		e.background(func(ctx context.Context) func() {
			var rerr error
			if r == notify.Accept {
				rerr = e.backend.AcceptFriend(ctx, p.FromUserID)
			} else {
				rerr = e.backend.DeclineFriend(ctx, p.FromUserID)
			}
			return func() { e.finishResolve(p, r, rerr) }
		})
		e.publish()
	})
	if callErr != nil {
		return callErr
	}
	return err
}

func (e *Engine) finishResolve(p notify.Pending, r notify.Resolution, err error) {
	if err != nil {
		e.notes.AbortResolve(p.NotificationID)
		verb := "accept"
		if r == notify.Decline {
			verb = "decline"
		}
		e.log.Warn("friend request resolution failed", zap.String("notification_id", p.NotificationID), zap.Stringer("resolution", r), zap.Error(err))
		notice.Errorf(e.notices, "%s", api.Detail(err, "Failed to "+verb+" friend request"))
		return
	}
	e.notes.CompleteResolve(p.NotificationID)
	notice.Successf(e.notices, "Friend request from %s %s!", p.DisplayName, r)
	if r == notify.Accept {
		e.refreshFriends()
	}
}

// RedeemScanned redeems data read from a friend code.
func (e *Engine) RedeemScanned(ctx context.Context, data string) (deeplink.Result, error) {
	var (
		flow *deeplink.Flow
		user model.User
	)
	if err := e.call(ctx, func() { flow, user = e.flow, e.user }); err != nil {
		return deeplink.NoToken, err
	}
	if flow == nil {
		return deeplink.NoToken, ErrNotStarted
	}
	return flow.RedeemScanned(ctx, user, data), nil
}

func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := e.call(ctx, func() { s = e.snapshot() })
	return s, err
}

// Subscribe returns a channel that always holds the latest snapshot. The
// returned func unsubscribes.
func (e *Engine) Subscribe(ctx context.Context) (<-chan Snapshot, func(), error) {
	ch := make(chan Snapshot, 1)
	var id int
	err := e.call(ctx, func() {
		id = e.nextSub
		e.nextSub++
		e.subs[id] = ch
		ch <- e.snapshot()
	})
	if err != nil {
		return nil, func() {}, err
	}
	cancel := func() {
		_ = e.call(context.Background(), func() { delete(e.subs, id) })
	}
	return ch, cancel, nil
}

func (e *Engine) snapshot() Snapshot {
	return Snapshot{
		User:          e.user,
		Connection:    e.conn.Session(),
		Chat:          e.chats.Snapshot(),
		Notifications: e.notes.Active(),
		UnreadCount:   e.notes.UnreadCount(),
		Friends:       append([]model.User(nil), e.friends...),
	}
}

func (e *Engine) publish() {
	if len(e.subs) == 0 {
		return
	}
	s := e.snapshot()
	for _, ch := range e.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func (e *Engine) handleTransportEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventConnected:
		e.log.Info("connected", zap.String("user_id", ev.Session.UserID))
		if e.everConnected {
			e.refreshChats()
			e.refreshNotifications()
		}
		e.everConnected = true
	case transport.EventDisconnected:
		e.log.Info("disconnected, reconnecting")
	case transport.EventError:
		e.log.Debug("connection error", zap.Error(ev.Err))
		if !e.connErrShown {
			e.connErrShown = true
			notice.Errorf(e.notices, connectionErrorText)
		}
	case transport.EventClosed:
		e.log.Warn("connection closed", zap.Error(ev.Err))
		if errors.Is(ev.Err, transport.ErrTokenExpired) {
			notice.Errorf(e.notices, sessionExpiredText)
			e.endSession()
		}
	}
}

func (e *Engine) refreshChats() {
	if e.refreshing {
		return
	}
	e.refreshing = true
	e.background(func(ctx context.Context) func() {
		chats, err := e.backend.ListChats(ctx)
		return func() {
			e.refreshing = false
			if err != nil {
				e.log.Warn("load chats failed", zap.Error(err))
				return
			}
			e.chats.ReplaceChats(chats)
		}
	})
}

func (e *Engine) refreshNotifications() {
	e.background(func(ctx context.Context) func() {
		list, err := e.backend.ListNotifications(ctx)
		if err != nil {
			e.log.Warn("load notifications failed", zap.Error(err))
			return nil
		}
		return func() { e.notes.Replace(list) }
	})
}

func (e *Engine) refreshFriends() {
	e.background(func(ctx context.Context) func() {
		friends, err := e.backend.ListFriends(ctx)
		if err != nil {
			e.log.Warn("load friends failed", zap.Error(err))
			return nil
		}
		return func() { e.friends = friends }
	})
}

func (e *Engine) redeemLocation() {
	flow, user := e.flow, e.user
	e.background(func(ctx context.Context) func() {
		if res := flow.Redeem(ctx, user); res != deeplink.NoToken {
			e.log.Info("add-friend link redeemed", zap.Stringer("result", res))
		}
		return nil
	})
}

func (e *Engine) afterFriendRequestSent() {
	if err := e.conn.Send(wire.RefreshNotifications{}); err != nil {
		e.log.Debug("refresh_notifications not sent", zap.Error(err))
	}
	e.refreshFriends()
	e.publish()
}

type handlers struct {
	e *Engine
}

func (h *handlers) HandleNewMessage(f wire.NewMessage) {
	e := h.e
	if e.chats.ApplyNewMessage(f.Message) == chatstate.UnknownChat {
		e.log.Debug("message for unknown chat", zap.String("chat_id", f.Message.ChatID))
		e.refreshChats()
	}
}

func (h *handlers) HandleTyping(f wire.Typing) {
	h.e.chats.ApplyTyping(f, h.e.opts.Clock())
}

func (h *handlers) HandlePaymentRequest(f wire.PaymentRequest) {
	amount := strconv.FormatFloat(f.Payment.Amount, 'f', -1, 64)
	notice.Infof(h.e.notices, "Payment request: $%s from %s", amount, f.Payment.Description)
}

func (h *handlers) HandleNotification(f wire.NotificationPush) {
	h.e.notes.Ingest(f.Notification)
}

func (h *handlers) HandleNotificationsUpdate(f wire.NotificationsUpdate) {
	h.e.notes.Replace(f.Notifications)
}
