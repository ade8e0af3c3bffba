// ABOUTME: Markdown render collaborator: detection heuristic and HTML conversion.
// ABOUTME: Consumes persisted-message notifications; contains no sync logic.

package render

import (
	"bytes"
	"fmt"
	"html"
	"log/slog"
	"regexp"

	"github.com/yuin/goldmark"
)

// markdownPattern matches structural markers that suggest a message body is
// markdown rather than plain text.
var markdownPattern = regexp.MustCompile("(?m)(\\*\\*|__|^#{1,6} |```|^---|^> |!\\[|\\[.+\\]\\(|\\|-)")

// DetectMarkdown reports whether content looks like markdown. A heuristic
// hint for display only; false negatives render as plain text, which is safe.
func DetectMarkdown(content string) bool {
	return markdownPattern.MatchString(content)
}

// Renderer converts message content to HTML for display. It implements the
// engine's persisted-message observer so display processing keys off the
// engine's notifications rather than probing engine internals.
type Renderer struct {
	markdown goldmark.Markdown
	logger   *slog.Logger
}

// NewRenderer creates a Renderer.
func NewRenderer(logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		markdown: goldmark.New(),
		logger:   logger.With("component", "render"),
	}
}

// Render converts content to HTML. Plain text is wrapped in a paragraph;
// markdown goes through goldmark.
func (r *Renderer) Render(content string) (string, error) {
	if !DetectMarkdown(content) {
		return "<p>" + html.EscapeString(content) + "</p>\n", nil
	}

	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return buf.String(), nil
}

// OnMessagePersisted receives the engine's persisted-message notification.
func (r *Renderer) OnMessagePersisted(messageID, conversationID string) {
	r.logger.Debug("message ready for display",
		"message_id", messageID,
		"conversation_id", conversationID)
}
