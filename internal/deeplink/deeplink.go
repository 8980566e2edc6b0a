// Package deeplink redeems add-friend links and scanned codes into friend
// requests.
package deeplink

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"sisi-realtime/internal/api"
	"sisi-realtime/internal/identity"
	"sisi-realtime/internal/model"
	"sisi-realtime/internal/notice"
)

type FriendAdder interface {
	AddFriend(ctx context.Context, username string) error
}

// Location is the address the client was opened with.
type Location interface {
	URL() string
	Replace(url string)
}

type Result int

const (
	NoToken Result = iota
	SelfLink
	Sent
	AlreadyFriends
	Failed
	Invalid
)

func (r Result) String() string {
	switch r {
	case SelfLink:
		return "self"
	case Sent:
		return "sent"
	case AlreadyFriends:
		return "already-friends"
	case Failed:
		return "failed"
	case Invalid:
		return "invalid"
	default:
		return "no-token"
	}
}

type Flow struct {
	adder     FriendAdder
	sink      notice.Sink
	loc       Location
	onSuccess func(identity.Token)

	mu       sync.Mutex
	redeemed bool
}

// NewFlow builds the redemption flow for one authenticated session.
// onSuccess may be nil.
func NewFlow(adder FriendAdder, sink notice.Sink, loc Location, onSuccess func(identity.Token)) *Flow {
	if sink == nil {
		sink = notice.Discard
	}
	return &Flow{adder: adder, sink: sink, loc: loc, onSuccess: onSuccess}
}

// Redeem looks for a token in the location and redeems it. It acts at most
// once per Flow; the token parameters are stripped from the location
// whatever the outcome.
func (f *Flow) Redeem(ctx context.Context, current model.User) Result {
	f.mu.Lock()
	if f.redeemed || f.loc == nil {
		f.mu.Unlock()
		return NoToken
	}
	raw := f.loc.URL()
	tok, ok := tokenFromLocation(raw)
	if !ok {
		f.mu.Unlock()
		return NoToken
	}
	f.redeemed = true
	f.mu.Unlock()

	defer f.loc.Replace(identity.StripQuery(raw))

	if tok.UserID == current.ID {
		notice.Infof(f.sink, "You can't add yourself as a friend!")
		return SelfLink
	}
	return f.add(ctx, tok)
}

// RedeemScanned handles data read from a code, either a link or the older
// JSON record. The location is not touched.
func (f *Flow) RedeemScanned(ctx context.Context, current model.User, data string) Result {
	tok, ok := identity.Decode(data)
	if !ok {
		notice.Errorf(f.sink, "Invalid QR code data")
		return Invalid
	}
	if tok.UserID == current.ID {
		notice.Infof(f.sink, "That's your own QR code!")
		return SelfLink
	}
	return f.add(ctx, tok)
}

func (f *Flow) add(ctx context.Context, tok identity.Token) Result {
	name := tok.DisplayName
	if name == "" {
		name = tok.Username
	}

	err := f.adder.AddFriend(ctx, tok.Username)
	if err == nil {
		notice.Successf(f.sink, "Friend request sent to %s!", name)
		if f.onSuccess != nil {
			f.onSuccess(tok)
		}
		return Sent
	}

	detail := api.Detail(err, "")
	if strings.Contains(strings.ToLower(detail), "already exists") {
		notice.Infof(f.sink, "You're already friends with %s!", name)
		return AlreadyFriends
	}
	if detail == "" {
		detail = "Failed to send friend request"
	}
	notice.Errorf(f.sink, "%s", detail)
	return Failed
}

func tokenFromLocation(raw string) (identity.Token, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.RawQuery == "" {
		return identity.Token{}, false
	}
	return identity.FromQuery(u.RawQuery)
}

// StaticLocation is a Location held in memory, for headless clients.
type StaticLocation struct {
	mu       sync.Mutex
	url      string
	replaced int
}

func NewStaticLocation(url string) *StaticLocation {
	return &StaticLocation{url: url}
}

func (l *StaticLocation) URL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.url
}

func (l *StaticLocation) Replace(url string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.url = url
	l.replaced++
}

// Replaced counts calls to Replace.
func (l *StaticLocation) Replaced() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.replaced
}
