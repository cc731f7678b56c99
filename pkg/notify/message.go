package notify

import (
	"fmt"
	"unicode/utf8"

	goslack "github.com/slack-go/slack"
)

const maxBlockTextLength = 2900

var urgencyEmoji = map[string]string{
	"CRITICAL": ":rotating_light:",
	"HIGH":     ":warning:",
	"MEDIUM":   ":large_orange_diamond:",
	"LOW":      ":large_blue_diamond:",
}

func caseURL(caseID, dashboardURL string) string {
	return fmt.Sprintf("%s/cases/%s", dashboardURL, caseID)
}

// BuildEscalationMessage creates Block Kit blocks for an escalation
// notification: header with urgency, investigation context, the problem
// statement, and a link to the case.
func BuildEscalationMessage(input EscalationInput, dashboardURL string) []goslack.Block {
	emoji := urgencyEmoji[input.UrgencyLevel]
	if emoji == "" {
		emoji = ":warning:"
	}

	var blocks []goslack.Block

	headerText := fmt.Sprintf("%s *Escalation required: %s*", emoji, input.Title)
	blocks = append(blocks, goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
		nil, nil,
	))

	detail := fmt.Sprintf("*Phase:* %s\n*Reason:* %s", input.Phase, input.Reason)
	if input.UrgencyLevel != "" {
		detail = fmt.Sprintf("*Urgency:* %s\n%s", input.UrgencyLevel, detail)
	}
	blocks = append(blocks, goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, detail, false, false),
		nil, nil,
	))

	if input.ProblemStatement != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(input.ProblemStatement), false, false),
			nil, nil,
		))
	}

	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "View Case", false, false))
	btn.URL = caseURL(input.CaseID, dashboardURL)
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

// EscalationFallback returns the plain-text rendering of an escalation
// notification. It leads with the case fingerprint so history search can
// locate the message for threading.
func EscalationFallback(input EscalationInput) string {
	return fmt.Sprintf("%s escalation required: %s", CaseFingerprint(input.CaseID), input.Title)
}

func truncateForSlack(text string) string {
	if utf8.RuneCountInString(text) <= maxBlockTextLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxBlockTextLength]) + "\n\n_... (truncated - see the full case in the dashboard)_"
}
