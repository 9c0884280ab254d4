package conversation

import (
	"regexp"
	"strings"

	"github.com/soyeahso/huddle/internal/domain"
)

// Credit exhaustion sentinel. Any committed reply containing the marker ends
// the conversation right after it is stored.
const (
	CreditExhaustedMarker  = "insufficient credits"
	CreditExhaustedMessage = "Sorry, you have insufficient credits to continue this conversation. Please top up your balance and try again."
)

// endCommands match explicit user requests to end the conversation. Slash
// commands must stand alone as a word and phrases must start on a word
// boundary, so "/endpoint" or "weekend conversation" do not count.
var endCommands = []*regexp.Regexp{
	regexp.MustCompile(`(^|\s)/(stop|quit|end)([\s.!?]|$)`),
	regexp.MustCompile(`\b(end|stop)\s+(the\s+|this\s+)?conversation\b`),
}

// HasEndSignal reports whether any user entry in msgs asks to end the conversation.
func HasEndSignal(msgs []domain.Message) bool {
	for _, m := range msgs {
		if m.Role != domain.RoleUser {
			continue
		}
		text := strings.ToLower(strings.TrimSpace(StripFileContext(m.Content)))
		for _, re := range endCommands {
			if re.MatchString(text) {
				return true
			}
		}
	}
	return false
}

// isCreditExhausted reports whether a committed body carries the marker.
func isCreditExhausted(body string) bool {
	return strings.Contains(strings.ToLower(body), CreditExhaustedMarker)
}
