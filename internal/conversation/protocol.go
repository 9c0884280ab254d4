package conversation

import (
	"fmt"
	"strings"

	"github.com/soyeahso/huddle/internal/domain"
)

// Reply markers agents must emit, case-sensitive and in this order.
const (
	LanguageMarker = "LANGUAGE:"
	ResponseMarker = "RESPONSE:"

	defaultLanguage = "en"
)

// ParseReply splits a raw agent reply into its language code and body.
//
// Grammar:
//
//	reply    = [preamble] "LANGUAGE:" code [text] "RESPONSE:" body
//	code     = first whitespace-separated token after LANGUAGE:, lower-cased
//	body     = everything after the first RESPONSE: that follows LANGUAGE:, trimmed
//
// When either marker is missing, or RESPONSE: only occurs before LANGUAGE:,
// the language is "en" and the body is the raw text unchanged. Marker text
// repeated inside the body is kept as part of the body.
func ParseReply(raw string) (language, body string) {
	li := strings.Index(raw, LanguageMarker)
	if li < 0 {
		return defaultLanguage, raw
	}
	afterLang := raw[li+len(LanguageMarker):]
	ri := strings.Index(afterLang, ResponseMarker)
	if ri < 0 {
		return defaultLanguage, raw
	}

	language = defaultLanguage
	if fields := strings.Fields(afterLang[:ri]); len(fields) > 0 {
		language = strings.ToLower(strings.Trim(fields[0], ".,;:()[]\"'"))
		if language == "" {
			language = defaultLanguage
		}
	}
	return language, strings.TrimSpace(afterLang[ri+len(ResponseMarker):])
}

// lastN returns the trailing n entries of msgs. n <= 0 returns all of them.
func lastN(msgs []domain.Message, n int) []domain.Message {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

// RenderWindow renders entries as "speaker: message" lines.
func RenderWindow(msgs []domain.Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", m.Speaker, m.Content)
	}
	return b.String()
}

// File context delimiters wrapped around attachments in the persisted
// opening message.
const (
	FileContextStart = "=== ATTACHED FILES CONTEXT ==="
	FileContextEnd   = "=== END FILE CONTEXT ==="
)

// BuildFileContext prefixes text with a delimited block holding every
// attachment. Without attachments text is returned as is.
func BuildFileContext(attachments []domain.Attachment, text string) string {
	if len(attachments) == 0 {
		return text
	}

	var b strings.Builder
	b.WriteString(FileContextStart)
	b.WriteString("\n")
	for _, a := range attachments {
		if a.MimeType != "" {
			fmt.Fprintf(&b, "\n--- File: %s (%s) ---\n", a.Filename, a.MimeType)
		} else {
			fmt.Fprintf(&b, "\n--- File: %s ---\n", a.Filename)
		}
		b.WriteString(strings.TrimRight(a.Content, "\n"))
		fmt.Fprintf(&b, "\n--- End of %s ---\n", a.Filename)
	}
	b.WriteString("\n")
	b.WriteString(FileContextEnd)
	b.WriteString("\n\n")
	b.WriteString(text)
	return b.String()
}

// StripFileContext removes a file context block for display. Content
// without a complete block is returned unchanged.
func StripFileContext(content string) string {
	start := strings.Index(content, FileContextStart)
	if start < 0 {
		return content
	}
	end := strings.Index(content[start:], FileContextEnd)
	if end < 0 {
		return content
	}
	end += start + len(FileContextEnd)
	return strings.TrimSpace(content[:start] + content[end:])
}

// toDisplay projects a persisted entry onto its visible form.
func toDisplay(m domain.Message) domain.ConversationMessage {
	text := m.Content
	if m.Role == domain.RoleUser {
		text = StripFileContext(text)
	}
	return domain.ConversationMessage{
		Speaker:     m.Speaker,
		Message:     text,
		Timestamp:   m.Timestamp,
		AgentID:     m.AgentID,
		MessageType: domain.MessageTypeMessage,
	}
}

// Display projects persisted entries into their visible form.
func Display(msgs []domain.Message) []domain.ConversationMessage {
	out := make([]domain.ConversationMessage, len(msgs))
	for i, m := range msgs {
		out[i] = toDisplay(m)
	}
	return out
}
