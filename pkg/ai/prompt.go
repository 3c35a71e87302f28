package ai

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Bodies longer than this are cut before prompting
const maxPromptBody = 8000

func buildClassifyPrompt(emailText string) string {
	return fmt.Sprintf(`You are an assistant that triages a job seeker's inbox. Decide what to do with the email below.

ACTIONS:
- "reply": the sender expects an answer from the user (a recruiter asking for a resume, availability or a direct question).
- "star": the email is important and the user must see it (interview invitation, offer, selection result, deadline).
- "ignore": newsletters, promotions, automated notifications and anything that needs no attention.

Respond with ONLY a JSON object, no other text:
{"action": "reply" | "star" | "ignore", "confidence": number between 0 and 1, "reasoning": "one short sentence"}

EMAIL:
%s

JSON OUTPUT:`, truncate(emailText, maxPromptBody))
}

func buildReplyPrompt(req ReplyRequest) string {
	sender := req.FromEmail
	if req.FromName != "" {
		sender = fmt.Sprintf("%s <%s>", req.FromName, req.FromEmail)
	}
	return fmt.Sprintf(`You write email replies on behalf of the user described below.

ABOUT THE USER:
%s

RESUME LINK: %s

INSTRUCTIONS:
- Reply to the email from %s in a concise, polite and professional tone.
- Include the resume link when the sender asks about experience or a resume.
- Plain text only. Do not include a subject line, placeholders or markdown.
- End with a short sign-off.

SUBJECT: %s

EMAIL:
%s

REPLY:`, req.PersonalDescription, req.ResumeLink, sender, req.Subject, truncate(req.Body, maxPromptBody))
}

// truncate cuts s to at most max bytes without splitting a rune
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// stripCodeFence removes a surrounding markdown code block if present
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimSuffix(text, "```")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}

// parseClassification extracts the JSON object from a model answer.
// Confidence may arrive as a number or a numeric string.
func parseClassification(text string) (*ClassificationResult, error) {
	responseText := stripCodeFence(text)
	jsonStart := strings.Index(responseText, "{")
	jsonEnd := strings.LastIndex(responseText, "}")
	if jsonStart == -1 || jsonEnd <= jsonStart {
		return nil, fmt.Errorf("%w: no JSON object in %q", ErrMalformedResponse, truncate(text, 200))
	}
	responseText = responseText[jsonStart : jsonEnd+1]

	var raw struct {
		Action     string          `json:"action"`
		Confidence json.RawMessage `json:"confidence"`
		Reasoning  string          `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(responseText), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(raw.Action) == "" {
		return nil, fmt.Errorf("%w: missing action", ErrMalformedResponse)
	}

	result := &ClassificationResult{
		Action:    strings.TrimSpace(raw.Action),
		Reasoning: strings.TrimSpace(raw.Reasoning),
	}
	if len(raw.Confidence) > 0 {
		conf := strings.Trim(string(raw.Confidence), `" `)
		if v, err := strconv.ParseFloat(conf, 64); err == nil {
			result.Confidence = v
		}
	}
	return result, nil
}

// cleanReply trims model decoration around a drafted reply
func cleanReply(text string) (string, error) {
	reply := stripCodeFence(text)
	if lines := strings.SplitN(reply, "\n", 2); len(lines) == 2 && strings.HasPrefix(strings.ToLower(lines[0]), "subject:") {
		reply = strings.TrimSpace(lines[1])
	}
	if reply == "" {
		return "", fmt.Errorf("%w: empty reply", ErrMalformedResponse)
	}
	return reply, nil
}
