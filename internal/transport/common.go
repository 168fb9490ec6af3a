// Package transport connects chat surfaces to the calendar assistant.
package transport

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Chatter is the conversation a transport drives.
type Chatter interface {
	Chat(ctx context.Context, message string) string
	ClearHistory()
}

// Greeting is sent on /start and after /clear.
const Greeting = "Hi! I'm your calendar assistant. Ask me to add, find, change, or remove events. Send /clear to start a new conversation."

const emptyReply = "Sorry, I don't have an answer for that."

// respond handles commands and forwards everything else to the chatter.
// It returns false when the message carries no text.
func respond(ctx context.Context, chatter Chatter, text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	switch command(text) {
	case "/start", "/clear":
		chatter.ClearHistory()
		return Greeting, true
	}
	reply := chatter.Chat(ctx, text)
	if strings.TrimSpace(reply) == "" {
		reply = emptyReply
	}
	return reply, true
}

// command returns the bare command of text ("/start@calbot now" gives "/start"), or "".
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	word, _, _ := strings.Cut(text, " ")
	word, _, _ = strings.Cut(word, "@")
	return strings.ToLower(word)
}

// splitMessage cuts text into chunks of at most limit runes, preferring line breaks.
func splitMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var chunks []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
