package notify

import (
	"strings"

	goslack "github.com/slack-go/slack"
)

// CaseFingerprint is the stable dedup token embedded in every
// notification for a case. Repeat escalations search channel history for
// it and thread under the first message instead of posting a new one.
func CaseFingerprint(caseID string) string {
	return "fm-case:" + caseID
}

// normalizeText lowercases and collapses all whitespace runs to single
// spaces, so fingerprint matching survives Slack's reformatting.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// collectMessageText flattens a Slack message into one searchable string:
// the body plus every attachment's text and fallback.
func collectMessageText(msg goslack.Message) string {
	parts := make([]string, 0, 1+2*len(msg.Attachments))
	if msg.Text != "" {
		parts = append(parts, msg.Text)
	}
	for _, att := range msg.Attachments {
		if att.Text != "" {
			parts = append(parts, att.Text)
		}
		if att.Fallback != "" {
			parts = append(parts, att.Fallback)
		}
	}
	return strings.Join(parts, " ")
}
