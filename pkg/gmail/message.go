package gmail

import (
	"encoding/base64"
	"html"
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"
	"google.golang.org/api/gmail/v1"
)

var (
	htmlTagRe   = regexp.MustCompile(`<[^>]*>`)
	htmlBlockRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
)

// Message is the parsed view of a Gmail message used by the agent
type Message struct {
	ID         string
	ThreadID   string
	From       string // bare address, e.g. jane@example.com
	FromName   string
	Subject    string
	Body       string // plain text
	MessageID  string // RFC 5322 Message-ID header
	References string
}

// ParseMessage extracts sender, subject and a plain-text body from a full-format Gmail message
func ParseMessage(msg *gmail.Message) *Message {
	if msg == nil {
		return nil
	}
	out := &Message{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
	}
	if msg.Payload == nil {
		out.Body = msg.Snippet
		return out
	}

	headers := msg.Payload.Headers
	out.Subject = getHeader(headers, "Subject")
	out.MessageID = getHeader(headers, "Message-ID")
	if out.MessageID == "" {
		out.MessageID = getHeader(headers, "Message-Id")
	}
	out.References = getHeader(headers, "References")

	from := getHeader(headers, "From")
	if addr, err := mail.ParseAddress(from); err == nil {
		out.From = addr.Address
		out.FromName = addr.Name
	} else {
		out.From = strings.TrimSpace(from)
		// Extract address from "Name <email@example.com>" format
		if start, end := strings.LastIndex(from, "<"), strings.LastIndex(from, ">"); start >= 0 && end > start {
			out.From = strings.TrimSpace(from[start+1 : end])
			out.FromName = strings.TrimSpace(from[:start])
		}
	}

	body, isHTML := getEmailBody(msg.Payload)
	if isHTML {
		body = htmlToText(body)
	}
	if strings.TrimSpace(body) == "" {
		body = msg.Snippet
	}
	out.Body = strings.TrimSpace(body)

	return out
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// getEmailBody prefers text/plain over text/html
func getEmailBody(payload *gmail.MessagePart) (string, bool) {
	if len(payload.Parts) == 0 && payload.Body != nil && payload.Body.Data != "" {
		if data, ok := decodeBody(payload.Body.Data); ok {
			return data, payload.MimeType == "text/html"
		}
	}

	var htmlBody string
	var plainBody string

	var findBody func(parts []*gmail.MessagePart)
	findBody = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Filename == "" && part.Body != nil && part.Body.Data != "" {
				switch part.MimeType {
				case "text/plain":
					if plainBody == "" {
						plainBody, _ = decodeBody(part.Body.Data)
					}
				case "text/html":
					if htmlBody == "" {
						htmlBody, _ = decodeBody(part.Body.Data)
					}
				}
			}
			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}
	findBody(payload.Parts)

	if plainBody != "" {
		return plainBody, false
	}
	return htmlBody, htmlBody != ""
}

func decodeBody(data string) (string, bool) {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Gmail occasionally omits padding
		decoded, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return "", false
		}
	}
	return string(decoded), true
}

func htmlToText(s string) string {
	s = htmlBlockRe.ReplaceAllString(s, " ")
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	// Collapse multiple spaces into one
	return strings.Join(strings.Fields(s), " ")
}

func hasLabel(labels []string, labelID string) bool {
	for _, label := range labels {
		if label == labelID {
			return true
		}
	}
	return false
}

// IsStarred reports whether the message already carries the STARRED label
func IsStarred(msg *gmail.Message) bool {
	return msg != nil && hasLabel(msg.LabelIds, LabelStarred)
}
