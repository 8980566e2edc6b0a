package handler

import (
	"encoding/json"
	"log"

	"github.com/gin-gonic/gin"
	"sisi-realtime/internal/hub"
	"sisi-realtime/internal/wire"
)

func abortDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// push encodes f and hands it to the fanout for every listed user.
func push(out hub.Fanout, f wire.Frame, userIDs ...string) {
	if out == nil {
		return
	}
	data, err := wire.Encode(f)
	if err != nil {
		log.Printf("push %s: %v", f.Type(), err)
		return
	}
	hub.SendToUsers(out, userIDs, data)
}

// bodyMap binds an optional JSON object body. Missing bodies decode as empty.
func bodyMap(c *gin.Context) map[string]any {
	out := map[string]any{}
	if c.Request.Body == nil {
		return out
	}
	_ = json.NewDecoder(c.Request.Body).Decode(&out)
	return out
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
