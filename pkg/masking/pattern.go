package masking

import (
	"log/slog"
	"regexp"
)

// CompiledPattern is a masking pattern with a pre-compiled regex, ready to apply.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// maskingPattern is the raw (uncompiled) form of a built-in pattern.
type maskingPattern struct {
	Pattern     string
	Replacement string
	Description string
}

// builtinPatterns holds the built-in masking pattern definitions.
// Patterns are compiled eagerly at service creation; invalid regexes
// are logged and skipped.
var builtinPatterns = map[string]maskingPattern{
	"api_key": {
		Pattern:     `(?i)(?:api[_-]?key|apikey|key)["\']?\s*[:=]\s*["\']?([A-Za-z0-9_\-]{20,})["\']?`,
		Replacement: `"api_key": "__MASKED_API_KEY__"`,
		Description: "Masks API keys in common formats",
	},
	"password": {
		Pattern:     `(?i)(?:password|pwd|pass)["\']?\s*[:=]\s*["\']?([^"\'\s\n]{6,})["\']?`,
		Replacement: `"password": "__MASKED_PASSWORD__"`,
		Description: "Masks password fields",
	},
	"certificate": {
		Pattern:     `(?s)-----BEGIN [A-Z ]+-----.*?-----END [A-Z ]+-----`,
		Replacement: `__MASKED_CERTIFICATE__`,
		Description: "Masks PEM certificates and private keys",
	},
	"certificate_authority_data": {
		Pattern:     `(?i)certificate-authority-data:\s*([A-Za-z0-9+/]{20,}={0,2})`,
		Replacement: `certificate-authority-data: __MASKED_CA_CERTIFICATE__`,
		Description: "Masks base64 CA certificate data in kubeconfig excerpts",
	},
	"token": {
		Pattern:     `(?i)(?:token|bearer|jwt)["\']?\s*[:=]\s*["\']?([A-Za-z0-9_\-\.]{20,})["\']?`,
		Replacement: `"token": "__MASKED_TOKEN__"`,
		Description: "Masks bearer tokens and JWTs",
	},
	"email": {
		Pattern:     `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9]+(?:[.-][A-Za-z0-9]+)*\.[A-Za-z]{2,63}\b`,
		Replacement: `__MASKED_EMAIL__`,
		Description: "Masks email addresses",
	},
	"ssh_key": {
		Pattern:     `ssh-(?:rsa|dss|ed25519|ecdsa)\s+[A-Za-z0-9+/=]+`,
		Replacement: `__MASKED_SSH_KEY__`,
		Description: "Masks SSH public keys",
	},
	"base64_secret": {
		Pattern:     `\b([A-Za-z0-9+/]{20,}={0,2})\b`,
		Replacement: `__MASKED_BASE64_VALUE__`,
		Description: "Masks long base64-encoded values (aggressive)",
	},
	"base64_short": {
		Pattern:     `:\s+([A-Za-z0-9+/]{4,19}={0,2})(?:\s|$)`,
		Replacement: `: __MASKED_SHORT_BASE64__`,
		Description: "Masks short base64 values after a colon (aggressive)",
	},
	"private_key": {
		Pattern:     `(?i)(?:private[_-]?key)["\']?\s*[:=]\s*["\']?([A-Za-z0-9_\-\.]{20,})["\']?`,
		Replacement: `"private_key": "__MASKED_PRIVATE_KEY__"`,
		Description: "Masks private key fields",
	},
	"secret_key": {
		Pattern:     `(?i)(?:secret[_-]?key)["\']?\s*[:=]\s*["\']?([A-Za-z0-9_\-\.]{20,})["\']?`,
		Replacement: `"secret_key": "__MASKED_SECRET_KEY__"`,
		Description: "Masks secret key fields",
	},
	"aws_access_key": {
		Pattern:     `(?i)(?:aws[_-]?access[_-]?key[_-]?id)["\']?\s*[:=]\s*["\']?(AKIA[A-Z0-9]{16})["\']?`,
		Replacement: `"aws_access_key_id": "__MASKED_AWS_KEY__"`,
		Description: "Masks AWS access key IDs",
	},
	"aws_secret_key": {
		Pattern:     `(?i)(?:aws[_-]?secret[_-]?access[_-]?key)["\']?\s*[:=]\s*["\']?([A-Za-z0-9/+=]{40})["\']?`,
		Replacement: `"aws_secret_access_key": "__MASKED_AWS_SECRET__"`,
		Description: "Masks AWS secret access keys",
	},
	"github_token": {
		Pattern:     `(?i)(?:github[_-]?token|gh[ps]_[A-Za-z0-9_]{36,255})`,
		Replacement: `__MASKED_GITHUB_TOKEN__`,
		Description: "Masks GitHub tokens",
	},
	"slack_token": {
		Pattern:     `(?i)xox[baprs]-[A-Za-z0-9-]{10,72}`,
		Replacement: `__MASKED_SLACK_TOKEN__`,
		Description: "Masks Slack tokens",
	},
}

// patternGroups maps a group name to the patterns it applies, in order.
// The "security" group is the default for user-submitted content; "all"
// includes the aggressive base64 patterns and is rarely what you want
// for free-form troubleshooting text.
var patternGroups = map[string][]string{
	"basic":    {"api_key", "password"},
	"secrets":  {"api_key", "password", "token", "private_key", "secret_key"},
	"security": {"api_key", "password", "token", "certificate", "certificate_authority_data", "email", "ssh_key"},
	"cloud":    {"aws_access_key", "aws_secret_key", "api_key", "token"},
	"all": {
		"api_key", "password", "token", "certificate", "certificate_authority_data",
		"email", "ssh_key", "private_key", "secret_key",
		"aws_access_key", "aws_secret_key", "github_token", "slack_token",
		"base64_secret", "base64_short",
	},
}

// compileGroup compiles the named pattern group in declared order.
// An unknown group name yields no patterns, so masking passes content
// through unchanged.
func compileGroup(group string) []*CompiledPattern {
	names, ok := patternGroups[group]
	if !ok {
		slog.Warn("Unknown masking pattern group; content will pass through unmasked",
			"group", group)
		return nil
	}

	compiled := make([]*CompiledPattern, 0, len(names))
	for _, name := range names {
		raw, ok := builtinPatterns[name]
		if !ok {
			continue
		}
		re, err := regexp.Compile(raw.Pattern)
		if err != nil {
			slog.Error("Skipping masking pattern with invalid regex",
				"pattern", name, "error", err)
			continue
		}
		compiled = append(compiled, &CompiledPattern{
			Name:        name,
			Regex:       re,
			Replacement: raw.Replacement,
			Description: raw.Description,
		})
	}
	return compiled
}
