package gmail

import (
	"bytes"
	"encoding/base64"
	"io"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestParseMessagePrefersPlainText(t *testing.T) {
	msg := &gmail.Message{
		Id:       "m1",
		ThreadId: "t1",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "Jane Recruiter <jane@example.com>"},
				{Name: "Subject", Value: "Opportunity"},
				{Name: "Message-ID", Value: "<abc@example.com>"},
			},
			Parts: []*gmail.MessagePart{
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<p>Hello <b>there</b></p>")}},
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("please send your resume")}},
			},
		},
	}

	parsed := ParseMessage(msg)
	require.NotNil(t, parsed)
	assert.Equal(t, "m1", parsed.ID)
	assert.Equal(t, "t1", parsed.ThreadID)
	assert.Equal(t, "jane@example.com", parsed.From)
	assert.Equal(t, "Jane Recruiter", parsed.FromName)
	assert.Equal(t, "Opportunity", parsed.Subject)
	assert.Equal(t, "<abc@example.com>", parsed.MessageID)
	assert.Equal(t, "please send your resume", parsed.Body)
}

func TestParseMessageStripsHTML(t *testing.T) {
	msg := &gmail.Message{
		Id: "m2",
		Payload: &gmail.MessagePart{
			MimeType: "text/html",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "hr@example.com"},
			},
			Body: &gmail.MessagePartBody{Data: b64("<style>p{}</style><p>Congratulations,&nbsp;you&#39;re selected</p>")},
		},
	}

	parsed := ParseMessage(msg)
	assert.Equal(t, "hr@example.com", parsed.From)
	assert.Equal(t, "Congratulations, you're selected", parsed.Body)
}

func TestParseMessageFallsBackToSnippet(t *testing.T) {
	msg := &gmail.Message{
		Id:      "m3",
		Snippet: "short preview",
		Payload: &gmail.MessagePart{MimeType: "multipart/mixed"},
	}
	assert.Equal(t, "short preview", ParseMessage(msg).Body)
	assert.Nil(t, ParseMessage(nil))
}

func TestIsStarred(t *testing.T) {
	assert.True(t, IsStarred(&gmail.Message{LabelIds: []string{"INBOX", "STARRED"}}))
	assert.False(t, IsStarred(&gmail.Message{LabelIds: []string{"INBOX"}}))
}

func TestBuildReplyMIME(t *testing.T) {
	raw, err := BuildReplyMIME(Reply{
		To:         "Jane <jane@example.com>",
		Subject:    "Re: Opportunity",
		Body:       "Thanks, my resume is attached.",
		InReplyTo:  "<abc@example.com>",
		References: "<root@example.com>",
	}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Re: Opportunity", subject)

	to, err := mr.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "jane@example.com", to[0].Address)

	assert.Equal(t, "<abc@example.com>", mr.Header.Get("In-Reply-To"))
	assert.Equal(t, "<root@example.com> <abc@example.com>", mr.Header.Get("References"))

	part, err := mr.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(part.Body)
	require.NoError(t, err)
	assert.Equal(t, "Thanks, my resume is attached.", string(body))
}

func TestBuildReplyMIMERejectsBadRecipient(t *testing.T) {
	_, err := BuildReplyMIME(Reply{To: "not an address", Subject: "Re: x"}, time.Now())
	assert.Error(t, err)
}
