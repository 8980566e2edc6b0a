package deeplink

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"sisi-realtime/internal/api"
	"sisi-realtime/internal/identity"
	"sisi-realtime/internal/model"
	"sisi-realtime/internal/notice"
)

type MockAdder struct {
	mock.Mock
}

func (m *MockAdder) AddFriend(ctx context.Context, username string) error {
	args := m.Called(ctx, username)
	return args.Error(0)
}

var me = model.User{ID: "me", Username: "sam", DisplayName: "Sam"}

const patLink = "https://sisi.example/add-friend?user=pat&id=u2&name=Pat%20Lee"

func lastNotice(t *testing.T, rec *notice.Recorder) notice.Notice {
	t.Helper()
	n, ok := rec.Last()
	if !ok {
		t.Fatalf("expected a notice")
	}
	return n
}

func TestRedeemSendsRequestOnceAndStripsLocation(t *testing.T) {
	adder := new(MockAdder)
	adder.On("AddFriend", mock.Anything, "pat").Return(nil).Once()
	rec := &notice.Recorder{}
	loc := NewStaticLocation(patLink + "&utm=x")
	var hooked []identity.Token

	flow := NewFlow(adder, rec, loc, func(tok identity.Token) { hooked = append(hooked, tok) })

	assert.Equal(t, Sent, flow.Redeem(context.Background(), me))
	assert.Equal(t, NoToken, flow.Redeem(context.Background(), me))

	adder.AssertExpectations(t)
	assert.Equal(t, notice.Notice{Level: notice.Success, Text: "Friend request sent to Pat Lee!"}, lastNotice(t, rec))
	assert.Equal(t, []identity.Token{{Username: "pat", UserID: "u2", DisplayName: "Pat Lee"}}, hooked)
	assert.Equal(t, 1, loc.Replaced())
	assert.Equal(t, "https://sisi.example/add-friend?utm=x", loc.URL())
}

func TestRedeemOwnLinkMakesNoCall(t *testing.T) {
	adder := new(MockAdder)
	rec := &notice.Recorder{}
	loc := NewStaticLocation("https://sisi.example/add-friend?user=sam&id=me&name=Sam")

	result := NewFlow(adder, rec, loc, nil).Redeem(context.Background(), me)

	assert.Equal(t, SelfLink, result)
	adder.AssertNotCalled(t, "AddFriend", mock.Anything, mock.Anything)
	assert.Equal(t, notice.Notice{Level: notice.Info, Text: "You can't add yourself as a friend!"}, lastNotice(t, rec))
	assert.Equal(t, 1, loc.Replaced())
	assert.Equal(t, "https://sisi.example/add-friend", loc.URL())
}

func TestRedeemAlreadyFriends(t *testing.T) {
	adder := new(MockAdder)
	adder.On("AddFriend", mock.Anything, "pat").
		Return(&api.Error{Status: 400, Detail: "Friend request already exists"})
	rec := &notice.Recorder{}
	loc := NewStaticLocation(patLink)

	assert.Equal(t, AlreadyFriends, NewFlow(adder, rec, loc, nil).Redeem(context.Background(), me))
	assert.Equal(t, notice.Notice{Level: notice.Info, Text: "You're already friends with Pat Lee!"}, lastNotice(t, rec))
	assert.Equal(t, 1, loc.Replaced())
}

func TestRedeemFailureUsesServerDetailOrFallback(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&api.Error{Status: 404, Detail: "User not found"}, "User not found"},
		{errors.New("dial tcp: connection refused"), "Failed to send friend request"},
	}
	for _, tc := range cases {
		adder := new(MockAdder)
		adder.On("AddFriend", mock.Anything, "pat").Return(tc.err)
		rec := &notice.Recorder{}
		loc := NewStaticLocation(patLink)
		hooked := false

		result := NewFlow(adder, rec, loc, func(identity.Token) { hooked = true }).Redeem(context.Background(), me)

		assert.Equal(t, Failed, result)
		assert.False(t, hooked)
		assert.Equal(t, notice.Notice{Level: notice.Error, Text: tc.want}, lastNotice(t, rec))
		assert.Equal(t, 1, loc.Replaced())
	}
}

func TestRedeemWithoutTokenLeavesLocationAlone(t *testing.T) {
	adder := new(MockAdder)
	loc := NewStaticLocation("https://sisi.example/chats?user=pat")

	assert.Equal(t, NoToken, NewFlow(adder, nil, loc, nil).Redeem(context.Background(), me))
	assert.Equal(t, 0, loc.Replaced())
	adder.AssertNotCalled(t, "AddFriend", mock.Anything, mock.Anything)
}

func TestRedeemScanned(t *testing.T) {
	adder := new(MockAdder)
	adder.On("AddFriend", mock.Anything, "pat").Return(nil)
	rec := &notice.Recorder{}
	flow := NewFlow(adder, rec, nil, nil)

	assert.Equal(t, Invalid, flow.RedeemScanned(context.Background(), me, "hello"))
	assert.Equal(t, notice.Notice{Level: notice.Error, Text: "Invalid QR code data"}, lastNotice(t, rec))

	own := `{"type":"sisi_chat_user","id":"me","username":"sam","display_name":"Sam"}`
	assert.Equal(t, SelfLink, flow.RedeemScanned(context.Background(), me, own))
	assert.Equal(t, "That's your own QR code!", lastNotice(t, rec).Text)

	legacy := `{"type":"sisi_chat_user","id":"u2","username":"pat","display_name":"Pat"}`
	assert.Equal(t, Sent, flow.RedeemScanned(context.Background(), me, legacy))
	assert.Equal(t, Sent, flow.RedeemScanned(context.Background(), me, patLink), "scanning is not once-only")
	adder.AssertNumberOfCalls(t, "AddFriend", 2)
}
