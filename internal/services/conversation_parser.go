package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/leadpulse/backend/internal/models"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MaxExcerptLength is the rune cap of a cleaned message excerpt
const MaxExcerptLength = 400

var messageTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseConversation normalizes an ordered message history into a summary. It never fails:
// unparsable timestamps are dropped and malformed markup degrades to best-effort text.
func ParseConversation(messages []models.RawMessage) models.ConversationSummary {
	summary := models.ConversationSummary{
		MessageCount: len(messages),
		Messages:     make([]models.MessageExcerpt, 0, len(messages)),
	}

	for _, m := range messages {
		excerpt := models.MessageExcerpt{
			Type: normalizeMessageType(m.Type),
			From: strings.TrimSpace(m.From),
			Text: truncateRunes(collapseWhitespace(stripMarkup(m.Body)), MaxExcerptLength),
		}

		if ts, ok := parseMessageTime(m.Time); ok {
			excerpt.Time = &ts
			if summary.LastMessageAt == nil || ts.After(*summary.LastMessageAt) {
				last := ts
				summary.LastMessageAt = &last
			}
		}

		if excerpt.Type == models.MessageTypeReply {
			summary.ReplyCount++
		}
		summary.Messages = append(summary.Messages, excerpt)
	}

	summary.HasReplies = summary.ReplyCount > 0
	return summary
}

// ParseConversationJSON parses a stored raw conversation blob. Anything that is not a JSON
// array of messages yields the empty summary.
func ParseConversationJSON(blob []byte) models.ConversationSummary {
	var messages []models.RawMessage
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &messages); err != nil {
			messages = nil
		}
	}
	return ParseConversation(messages)
}

// BuildIntentPrompt renders the scoring prompt for one lead conversation
func BuildIntentPrompt(summary models.ConversationSummary) string {
	var b strings.Builder
	b.WriteString("You are scoring the buying intent of a sales lead from an email conversation.\n")
	b.WriteString("Rate the lead's intent to buy on a scale from 1 (not interested) to 10 (ready to buy).\n")
	b.WriteString("Respond with a single integer between 1 and 10 and nothing else.\n\n")
	fmt.Fprintf(&b, "Messages: %d, replies from the lead: %d\n\n", summary.MessageCount, summary.ReplyCount)

	if len(summary.Messages) == 0 {
		b.WriteString("(no messages)\n")
		return b.String()
	}

	for _, m := range summary.Messages {
		label := "SENT"
		if m.Type == models.MessageTypeReply {
			label = "LEAD REPLY"
		}
		b.WriteString("[" + label + "]")
		if m.Time != nil {
			b.WriteString(" " + m.Time.UTC().Format(time.RFC3339))
		}
		b.WriteString("\n")
		b.WriteString(m.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}

func normalizeMessageType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

func parseMessageTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range messageTimeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// stripMarkup extracts the visible text of an HTML fragment. Script and style contents
// are dropped; block-level elements become word breaks.
func stripMarkup(body string) string {
	if !strings.ContainsAny(body, "<&") {
		return body
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(body))
	skipDepth := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF at the end of input; a string reader has no other failure mode
			return b.String()
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Script || a == atom.Style {
				skipDepth++
			}
			if isBreakingElement(a) {
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if (a == atom.Script || a == atom.Style) && skipDepth > 0 {
				skipDepth--
			}
			if isBreakingElement(a) {
				b.WriteByte(' ')
			}
		}
	}
}

func isBreakingElement(a atom.Atom) bool {
	switch a {
	case atom.Br, atom.P, atom.Div, atom.Li, atom.Tr, atom.Td, atom.Blockquote,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Hr, atom.Table, atom.Ul, atom.Ol:
		return true
	}
	return false
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
