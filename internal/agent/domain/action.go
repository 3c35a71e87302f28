package domain

import (
	"fmt"
	"strings"
)

// Action is the outcome of classifying an inbound email
type Action string

const (
	ActionReply  Action = "reply"
	ActionStar   Action = "star"
	ActionIgnore Action = "ignore"
)

// ParseAction converts a classifier label into an Action.
// Unrecognized labels are rejected rather than defaulted.
func ParseAction(raw string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionReply:
		return ActionReply, nil
	case ActionStar:
		return ActionStar, nil
	case ActionIgnore:
		return ActionIgnore, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, raw)
	}
}

// ActivityType returns the activity tag recorded for a decision, e.g. "email_reply"
func (a Action) ActivityType() ActivityType {
	return ActivityType("email_" + string(a))
}

// Classification is the classifier's decision for one email body
type Classification struct {
	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// ClampConfidence bounds a raw model score into [0,1]
func ClampConfidence(v float64) float64 {
	if v != v { // NaN
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
