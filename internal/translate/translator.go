// Package translate is the rule-based step translator: it maps common
// natural-language step descriptions straight to instruction scripts so the
// loop can skip a reasoning-engine round trip for previously-seen phrasing.
// File rules are tried first, then built-in patterns; no match returns "" and
// the caller escalates to the engine. The rule file is designed to be grown
// over time from the audit trail (see internal/ruleingest).
package translate

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tasker-cli/internal/envinfo"
)

// Rule is one translation rule: any pattern substring-matching the lowered
// description selects the rule's script. ScriptMacOS, when present, overrides
// Script on macOS. Scripts may contain a {modifier} placeholder, filled with
// the platform launcher key.
type Rule struct {
	Patterns    []string `json:"patterns"`
	Script      string   `json:"script"`
	ScriptMacOS string   `json:"script_macos,omitempty"`
}

// ruleFile tolerates both a bare list and an object with a "rules" key.
type ruleFile struct {
	Rules []Rule `json:"rules"`
}

// LoadRules reads the rule file. A missing file is an empty rule set, not an
// error; a malformed file is an error so bad edits surface instead of
// silently disabling translation.
func LoadRules(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var rules []Rule
	if err := json.Unmarshal(raw, &rules); err == nil {
		return rules, nil
	}
	var wrapped ruleFile
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	return wrapped.Rules, nil
}

// Translator matches step descriptions against the rule set. The rule file
// is re-read on every call so external edits take effect without restart;
// within one call the loaded set is an immutable snapshot, which keeps
// matching deterministic per step.
type Translator struct {
	rulesFile string
	logger    *zap.Logger
}

// New creates a Translator reading rules from rulesFile.
func New(rulesFile string, logger *zap.Logger) *Translator {
	return &Translator{rulesFile: rulesFile, logger: logger.Named("translator")}
}

var (
	quotedPayloadRegex = regexp.MustCompile(`type\s+['"]([^'"]+)['"]`)
	arithPayloadRegex  = regexp.MustCompile(`type\s+(\d+\s*[-+*/]\s*\d+)`)
)

// Translate converts a description into an instruction script, or "" when
// nothing matches. Deterministic for a fixed description, environment
// context, and rule file.
func (t *Translator) Translate(description, envContext string) string {
	text := strings.ToLower(strings.TrimSpace(description))
	if text == "" {
		return ""
	}

	if script := t.matchFileRules(text, envContext); script != "" {
		return script
	}
	return matchBuiltins(text, envContext)
}

// matchFileRules scans the file rules in load order; within a rule, patterns
// in list order. First match wins.
func (t *Translator) matchFileRules(text, envContext string) string {
	rules, err := LoadRules(t.rulesFile)
	if err != nil {
		t.logger.Warn("Rule file unreadable; falling back to built-in patterns.", zap.Error(err))
		return ""
	}

	macOS := envinfo.IsMacOS(envContext)
	modifier := envinfo.ModifierKey(envContext)

	for _, rule := range rules {
		if rule.Script == "" && rule.ScriptMacOS == "" {
			continue
		}
		for _, p := range rule.Patterns {
			if p == "" || !strings.Contains(text, strings.ToLower(p)) {
				continue
			}
			script := rule.Script
			if macOS && rule.ScriptMacOS != "" {
				script = rule.ScriptMacOS
			}
			if script == "" {
				break // matched, but no usable script on this platform; next rule
			}
			return strings.TrimSpace(strings.ReplaceAll(script, "{modifier}", modifier))
		}
	}
	return ""
}

// matchBuiltins applies the fixed fallback patterns, in order.
func matchBuiltins(text, envContext string) string {
	// (a) Launch Calculator via the platform app launcher.
	if strings.Contains(text, "calculator") &&
		(strings.Contains(text, "open") || strings.Contains(text, "launch") || strings.Contains(text, "run")) {
		if envinfo.IsMacOS(envContext) {
			return `hotkey command space; wait 600ms; type "Calculator"; press enter`
		}
		return `hotkey win r; wait 600ms; type "calc"; press enter`
	}

	// (b) Type a payload and press enter. Quoted capture first, then a bare
	// arithmetic expression.
	if strings.Contains(text, "type") && strings.Contains(text, "enter") {
		if m := quotedPayloadRegex.FindStringSubmatch(text); m != nil {
			return fmt.Sprintf(`type %q; press enter`, strings.TrimSpace(m[1]))
		}
		if m := arithPayloadRegex.FindStringSubmatch(text); m != nil {
			payload := strings.ReplaceAll(m[1], " ", "")
			return fmt.Sprintf(`type %q; press enter`, payload)
		}
	}

	// (c) The demo literal.
	if strings.Contains(text, "hello world") && strings.Contains(text, "type") {
		return `type "Hello World"`
	}

	return ""
}
