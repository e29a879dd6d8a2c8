// Package injection flags prompt-injection attempts in inbound messages.
//
// Detection is pattern-based: a fixed catalogue of case-insensitive regular
// expressions covering instruction overrides, persona hijacks, permission
// bypasses, prompt extraction, dangerous commands, and known jailbreak
// phrasings. A hit never rejects a request; it changes how the prompt is
// framed downstream.
package injection

import "regexp"

var patterns = []string{
	`(?i)ignore\s+(all\s+)?previous\s+instructions`,
	`(?i)ignore\s+(all\s+)?prior\s+instructions`,
	`(?i)ignore\s+(all\s+)?above\s+instructions`,
	`(?i)disregard\s+(all\s+)?previous`,
	`(?i)forget\s+(all\s+)?previous`,
	`(?i)you\s+are\s+now\s+`,
	`(?i)new\s+persona`,
	`(?i)act\s+as\s+if\s+you\s+(are|were)\s+`,
	`(?i)pretend\s+(you\s+are|to\s+be)\s+`,
	`(?i)skip\s+permissions`,
	`(?i)bypass\s+(security|rules|restrictions|filters)`,
	`(?i)override\s+(security|rules|instructions|system)`,
	`(?i)reveal\s+(your|the)\s+(system\s+)?prompt`,
	`(?i)show\s+(me\s+)?(your|the)\s+(system\s+)?prompt`,
	`(?i)print\s+(your|the)\s+(system\s+)?prompt`,
	`(?i)output\s+(your|the)\s+instructions`,
	`(?i)what\s+are\s+your\s+(system\s+)?instructions`,
	`(?i)repeat\s+(your|the)\s+(system|initial)\s+(prompt|instructions)`,
	`(?i)display\s+(the\s+)?contents?\s+of\s+(your\s+)?(CLAUDE|claude)\.md`,
	`(?i)read\s+(/etc/shadow|/etc/passwd|\.env|credentials|authorized_keys)`,
	`(?i)cat\s+(/etc/shadow|/etc/passwd|\.env|\.ssh)`,
	`(?i)sudo\s+`,
	`(?i)rm\s+-rf\s+/`,
	`(?i)\bDAN\b.*\bjailbreak\b`,
	`(?i)developer\s+mode\s+(enabled|on|activated)`,
	`(?i)ignore\s+your\s+(safety|security)\s+(rules|guidelines|protocols)`,
}

// Detector matches inbound text against the pattern catalogue.
type Detector struct {
	compiled []*regexp.Regexp
}

// NewDetector compiles the full catalogue. A pattern that fails to compile is
// programmer error and panics, so a bad catalogue can never reach serving.
func NewDetector() *Detector {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return &Detector{compiled: compiled}
}

// Detect reports whether text matches at least one pattern.
func (d *Detector) Detect(text string) bool {
	for _, re := range d.compiled {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func (d *Detector) matchedIndices(text string) []int {
	var idx []int
	for i, re := range d.compiled {
		if re.MatchString(text) {
			idx = append(idx, i)
		}
	}
	return idx
}
