// Package identity encodes a user's shareable identity into a deep-link URL
// (rendered as a QR code or shared as text) and decodes it back.
//
// A token is not a secret. It lets the holder send a friend request to the
// subject, nothing more.
package identity

import (
	"encoding/json"
	"net/url"
	"strings"

	"sisi-realtime/internal/model"
)

const (
	Path = "/add-friend"

	ParamUser = "user"
	ParamID   = "id"
	ParamName = "name"

	legacyType     = "sisi_chat_user"
	maxLegacyBytes = 4 << 10
)

type Token struct {
	Username    string
	UserID      string
	DisplayName string
}

func FromUser(u model.User) Token {
	return Token{Username: u.Username, UserID: u.ID, DisplayName: u.DisplayName}
}

func (t Token) Valid() bool {
	return t.Username != "" && t.UserID != "" && t.DisplayName != ""
}

// Encode returns <origin>/add-friend?user=..&id=..&name=.. with every value
// escaped on its own.
func Encode(origin string, t Token) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(origin, "/"))
	b.WriteString(Path)
	b.WriteByte('?')
	b.WriteString(ParamUser)
	b.WriteByte('=')
	b.WriteString(escapeComponent(t.Username))
	b.WriteByte('&')
	b.WriteString(ParamID)
	b.WriteByte('=')
	b.WriteString(escapeComponent(t.UserID))
	b.WriteByte('&')
	b.WriteString(ParamName)
	b.WriteByte('=')
	b.WriteString(escapeComponent(t.DisplayName))
	return b.String()
}

// Decode accepts a deep-link URL (absolute or origin-relative) or the legacy
// JSON record. ok is false for anything malformed or partial.
func Decode(raw string) (Token, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Token{}, false
	}
	if strings.HasPrefix(raw, "{") {
		return decodeLegacy(raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Token{}, false
	}
	if strings.TrimRight(u.Path, "/") != Path {
		return Token{}, false
	}
	return FromQuery(u.RawQuery)
}

// FromQuery reads a token from a raw query string regardless of path.
func FromQuery(rawQuery string) (Token, bool) {
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return Token{}, false
	}
	t := Token{
		Username:    q.Get(ParamUser),
		UserID:      q.Get(ParamID),
		DisplayName: q.Get(ParamName),
	}
	if !t.Valid() {
		return Token{}, false
	}
	return t, true
}

// StripQuery removes the token parameters from a URL and keeps everything
// else. Unparseable input is returned unchanged.
func StripQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Del(ParamUser)
	q.Del(ParamID)
	q.Del(ParamName)
	u.RawQuery = q.Encode()
	u.ForceQuery = false
	return u.String()
}

type legacyPayload struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

func decodeLegacy(raw string) (Token, bool) {
	if len(raw) > maxLegacyBytes {
		return Token{}, false
	}
	var p legacyPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Token{}, false
	}
	if p.Type != legacyType {
		return Token{}, false
	}
	t := Token{Username: p.Username, UserID: p.ID, DisplayName: p.DisplayName}
	if !t.Valid() {
		return Token{}, false
	}
	return t, true
}

func escapeComponent(s string) string {
	// QueryEscape already turned literal '+' into %2B, so any '+' left is a space.
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
