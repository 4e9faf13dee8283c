// Package ruleingest mines the step audit trail for translation rules: steps
// whose thought/instruction pair recurs become file rules the translator can
// hit without an engine round trip. Offline utility, run via `rules export`.
package ruleingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tasker-cli/api/schemas"
	"github.com/xkilldash9x/tasker-cli/internal/translate"
)

// patternLen bounds the mined pattern: the lowercased thought prefix.
const patternLen = 80

// Ingestor converts rule candidates into translator file rules.
type Ingestor struct {
	rulesFile string
	logger    *zap.Logger
}

// New creates an ingestor targeting rulesFile.
func New(rulesFile string, logger *zap.Logger) *Ingestor {
	return &Ingestor{rulesFile: rulesFile, logger: logger.Named("ruleingest")}
}

// BuildRules converts candidates into rules. Any step with a non-trivial
// thought and instruction qualifies, whatever its outcome: the operator
// reviews the merged file, and a failed pairing may still be the right
// translation. One rule per distinct pattern.
func BuildRules(candidates []schemas.RuleCandidate) []translate.Rule {
	var rules []translate.Rule
	seen := make(map[string]struct{})

	for _, c := range candidates {
		pattern := minePattern(c.Thought)
		if pattern == "" || strings.TrimSpace(c.Instruction) == "" {
			continue
		}
		if _, dup := seen[pattern]; dup {
			continue
		}
		seen[pattern] = struct{}{}
		rules = append(rules, translate.Rule{
			Patterns: []string{pattern},
			Script:   c.Instruction,
		})
	}
	return rules
}

// Merge folds mined rules into the existing rule file, de-duplicating by
// exact (sorted) pattern set, and reports how many were added.
func (i *Ingestor) Merge(mined []translate.Rule) (int, error) {
	existing, err := translate.LoadRules(i.rulesFile)
	if err != nil {
		return 0, err
	}

	known := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		known[patternKey(r.Patterns)] = struct{}{}
	}

	added := 0
	merged := existing
	for _, r := range mined {
		key := patternKey(r.Patterns)
		if _, dup := known[key]; dup {
			continue
		}
		known[key] = struct{}{}
		merged = append(merged, r)
		added++
	}

	if added == 0 {
		return 0, nil
	}
	if err := writeRules(i.rulesFile, merged); err != nil {
		return 0, err
	}
	i.logger.Info("Rule file updated",
		zap.String("path", i.rulesFile),
		zap.Int("added", added),
		zap.Int("total", len(merged)),
	)
	return added, nil
}

func minePattern(thought string) string {
	p := strings.ToLower(strings.TrimSpace(thought))
	if len(p) > patternLen {
		p = p[:patternLen]
	}
	return strings.TrimSpace(p)
}

func patternKey(patterns []string) string {
	normalized := make([]string, 0, len(patterns))
	for _, p := range patterns {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(p)))
	}
	sort.Strings(normalized)
	return strings.Join(normalized, "\x00")
}

func writeRules(path string, rules []translate.Rule) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create rules directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write rules file: %w", err)
	}
	return nil
}
