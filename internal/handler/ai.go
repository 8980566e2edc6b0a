package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AIHandler answers with canned suggestions. The dev backend has no model
// behind it.
type AIHandler struct{}

var cannedSuggestions = []string{"Thanks!", "Got it", "Let me check"}

func (h *AIHandler) Suggestions(c *gin.Context) {
	body := bodyMap(c)
	suggestions := append([]string(nil), cannedSuggestions...)
	if strings.HasSuffix(strings.TrimSpace(stringField(body, "message")), "?") {
		suggestions[0] = "Good question!"
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

// Translate echoes the message back untranslated.
func (h *AIHandler) Translate(c *gin.Context) {
	body := bodyMap(c)
	c.JSON(http.StatusOK, gin.H{"translation": stringField(body, "message")})
}
