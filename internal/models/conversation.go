package models

import "time"

// Message types as normalized by the conversation parser
const (
	MessageTypeSent  = "sent"
	MessageTypeReply = "reply"
)

// RawMessage is one message of an upstream conversation, before normalization
type RawMessage struct {
	Type string `json:"type"`
	Time string `json:"time"`
	From string `json:"from"`
	Body string `json:"body"`
}

// MessageExcerpt is a cleaned, length-capped message
type MessageExcerpt struct {
	Type string     `json:"type"`
	Time *time.Time `json:"time,omitempty"`
	From string     `json:"from,omitempty"`
	Text string     `json:"text"`
}

// ConversationSummary is the normalized form of a conversation
type ConversationSummary struct {
	MessageCount  int              `json:"message_count"`
	LastMessageAt *time.Time       `json:"last_message_at,omitempty"`
	ReplyCount    int              `json:"reply_count"`
	HasReplies    bool             `json:"has_replies"`
	Messages      []MessageExcerpt `json:"messages"`
}
