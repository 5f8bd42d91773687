package detect

import (
	"strings"

	"github.com/hivectl/hive/internal/domain"
)

// profile holds the flavour-specific surface markers. classify walks the
// checks from most to least specific; the first hit wins.
type profile struct {
	// Markers matched against the joined tail.
	rateLimited []string
	permission  []string
	declined    []string
	interrupted []string
	busy        []string

	// promptIdle reports whether line is an empty input prompt.
	promptIdle func(line string) bool
	// promptTyping reports whether line is an input prompt with pending text.
	promptTyping func(line string) bool
	// selection reports whether line looks like a menu option row.
	selection func(line string) bool
}

// workCompleteMarkers are protocol markers every agent prompt instructs the
// CLI to print, flavour-independent.
var workCompleteMarkers = []string{
	"WORK COMPLETE",
	"E2E tests PASSED",
	"E2E tests FAILED",
}

func profileFor(flavour domain.CLIFlavour) *profile {
	switch flavour {
	case domain.FlavourClaude:
		return claudeProfile
	case domain.FlavourCodex:
		return codexProfile
	case domain.FlavourGemini:
		return geminiProfile
	default:
		return genericProfile
	}
}

func (p *profile) classify(lines []string) State {
	tail := strings.Join(lines, "\n")

	switch {
	case containsAny(tail, p.rateLimited):
		return RateLimited
	case containsAny(tail, p.permission):
		return PermissionRequired
	case containsAny(tail, p.declined):
		return UserDeclined
	case p.hasSelection(lines):
		return AwaitingSelection
	case containsAny(tail, p.interrupted):
		return Interrupted
	case containsAny(tail, p.busy):
		return ToolRunning
	case containsAny(tail, workCompleteMarkers):
		return WorkComplete
	}

	// Prompt shape decides the quiet states: inspect the last few lines,
	// bottom up, since the input box sits at the bottom of the pane.
	for i := len(lines) - 1; i >= 0 && i >= len(lines)-4; i-- {
		line := lines[i]
		if p.promptTyping != nil && p.promptTyping(line) {
			return Typing
		}
		if p.promptIdle != nil && p.promptIdle(line) {
			if questionAbove(lines, i) {
				return AskingQuestion
			}
			return IdleAtPrompt
		}
	}
	return Unknown
}

func (p *profile) hasSelection(lines []string) bool {
	if p.selection == nil {
		return false
	}
	// A menu needs at least two option rows in the tail.
	n := 0
	for _, l := range lines {
		if p.selection(l) {
			n++
		}
	}
	return n >= 2
}

// questionAbove reports whether the content right above an idle prompt ends
// with a question aimed at the operator.
func questionAbove(lines []string, promptIdx int) bool {
	for i := promptIdx - 1; i >= 0 && i >= promptIdx-3; i-- {
		text := strings.TrimRight(strings.TrimSpace(strings.Trim(lines[i], "│╭╮╰╯─ ")), " ")
		if text == "" {
			continue
		}
		return strings.HasSuffix(text, "?")
	}
	return false
}

// numberedOption matches "1. Yes" / "❯ 2. No" style menu rows.
func numberedOption(line string) bool {
	t := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "❯"))
	if len(t) < 3 {
		return false
	}
	if t[0] < '1' || t[0] > '9' {
		return false
	}
	return t[1] == '.' || t[1] == ')'
}

var claudeProfile = &profile{
	rateLimited: []string{"usage limit reached", "rate limit", "Rate limit"},
	permission: []string{
		"Do you want to proceed?",
		"Do you want to make this edit",
		"Do you want to run",
		"Grant permission",
	},
	declined: []string{
		"What should Claude do instead?",
		"tell Claude what to do differently",
	},
	interrupted: []string{
		"Request interrupted by user",
		"Interrupted · ",
	},
	busy: []string{
		"esc to interrupt",
		"ctrl+b to run in background",
	},
	promptIdle: func(line string) bool {
		t := strings.TrimSpace(strings.Trim(line, "│ "))
		return t == ">"
	},
	promptTyping: func(line string) bool {
		t := strings.TrimSpace(strings.Trim(line, "│ "))
		return strings.HasPrefix(t, "> ") && len(t) > 2
	},
	selection: numberedOption,
}

var codexProfile = &profile{
	rateLimited: []string{"Rate limit reached", "rate limit"},
	permission: []string{
		"Allow command?",
		"Approve this command",
		"requires approval",
	},
	declined: []string{
		"command was not approved",
		"Denied by user",
	},
	interrupted: []string{
		"Interrupted by user",
		"Task interrupted",
	},
	busy: []string{
		"Esc to interrupt",
		"• Working",
	},
	promptIdle: func(line string) bool {
		t := strings.TrimSpace(line)
		return t == "▌" || t == ">"
	},
	promptTyping: func(line string) bool {
		t := strings.TrimSpace(line)
		return (strings.HasPrefix(t, "▌ ") || strings.HasPrefix(t, "> ")) && len(t) > 2
	},
	selection: numberedOption,
}

var geminiProfile = &profile{
	rateLimited: []string{"Quota exceeded", "rate limit", "RESOURCE_EXHAUSTED"},
	permission: []string{
		"Apply this change?",
		"Allow execution",
		"Waiting for user confirmation",
	},
	declined: []string{
		"Operation cancelled",
		"declined the request",
	},
	interrupted: []string{
		"Request cancelled",
		"Interrupted by user",
	},
	busy: []string{
		"esc to cancel",
		"(esc to cancel",
	},
	promptIdle: func(line string) bool {
		t := strings.TrimSpace(strings.Trim(line, "│ "))
		return t == ">"
	},
	promptTyping: func(line string) bool {
		t := strings.TrimSpace(strings.Trim(line, "│ "))
		return strings.HasPrefix(t, "> ") && len(t) > 2
	},
	selection: numberedOption,
}

// genericProfile covers unrecognised flavours with the common denominators.
var genericProfile = &profile{
	rateLimited: []string{"rate limit", "Rate limit", "usage limit"},
	permission:  []string{"proceed?", "Allow", "permission"},
	declined:    []string{"declined"},
	interrupted: []string{"Interrupted", "interrupted"},
	busy:        []string{"esc to interrupt", "Esc to interrupt"},
	promptIdle: func(line string) bool {
		t := strings.TrimSpace(line)
		return t == ">" || t == "$"
	},
	promptTyping: func(line string) bool {
		t := strings.TrimSpace(line)
		return (strings.HasPrefix(t, "> ") || strings.HasPrefix(t, "$ ")) && len(t) > 2
	},
	selection: numberedOption,
}
