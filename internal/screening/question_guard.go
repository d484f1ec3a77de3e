// Package screening detects prompt manipulation patterns and personal data
// in user questions. Findings never block a question; the chat pipeline
// records them in logs and metrics.
package screening

import (
	"regexp"
)

// Category labels a class of suspicious question content
type Category string

const (
	CategoryInstructionOverride Category = "instruction_override"
	CategorySystemPromptLeak    Category = "system_prompt_leak"
	CategoryRoleManipulation    Category = "role_manipulation"
	CategoryDelimiterAttack     Category = "delimiter_attack"
)

// Finding is one pattern match inside a question
type Finding struct {
	Category Category
	StartPos int
	EndPos   int
}

// categoryWeight orders categories by how directly they target the
// generator. Delimiter tricks are cheap to attempt and often accidental.
var categoryWeight = map[Category]float64{
	CategoryInstructionOverride: 1.0,
	CategorySystemPromptLeak:    1.0,
	CategoryRoleManipulation:    0.7,
	CategoryDelimiterAttack:     0.5,
}

// The corpus is questions about acquisition regulation, so the rules target
// attempts to steer the generator, not code execution payloads.
var rules = []struct {
	category Category
	patterns []*regexp.Regexp
}{
	{
		category: CategoryInstructionOverride,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(ignore|disregard)\s+(all\s+|any\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules|context)`),
			regexp.MustCompile(`(?i)override\s+(all|previous|your|the)\s+(instructions?|rules|settings?)`),
			regexp.MustCompile(`(?i)forget\s+(everything|all\s+previous|your\s+instructions?)`),
		},
	},
	{
		category: CategorySystemPromptLeak,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(show|reveal|print|repeat)\s+(me\s+)?(your|the)\s+(system|original|initial|hidden)\s+(prompt|instructions?)`),
			regexp.MustCompile(`(?i)what\s+(is|are|was|were)\s+(your|the)\s+(system|original|initial)\s+(prompt|instructions?)`),
		},
	},
	{
		category: CategoryRoleManipulation,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|the)\s`),
			regexp.MustCompile(`(?i)pretend\s+(to\s+)?be\s+(a|an)\s`),
			regexp.MustCompile(`(?i)act\s+as\s+(if\s+you|though\s+you)\s`),
			regexp.MustCompile(`(?i)from\s+now\s+on[,]?\s+(you|your)\s+(are|will)`),
			regexp.MustCompile(`(?i)assume\s+the\s+(role|identity)\s+of`),
		},
	},
	{
		category: CategoryDelimiterAttack,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\[/?(SYSTEM|USER|ASSISTANT)\]`),
			regexp.MustCompile(`<\|(system|user|assistant|end)\|>`),
			// The context fences used when assembling the generator prompt
			regexp.MustCompile(`(?i)===\s*(FAR\s+CONTEXT|END\s+CONTEXT)\s*===`),
		},
	},
}

// ScanQuestion returns every pattern match in the question, grouped in rule
// order. An empty slice means the question looks ordinary.
func ScanQuestion(question string) []Finding {
	var findings []Finding
	for _, rule := range rules {
		for _, pattern := range rule.patterns {
			for _, match := range pattern.FindAllStringIndex(question, -1) {
				findings = append(findings, Finding{
					Category: rule.category,
					StartPos: match[0],
					EndPos:   match[1],
				})
			}
		}
	}
	return findings
}

// Categories returns the distinct categories among findings, in first-seen
// order.
func Categories(findings []Finding) []string {
	seen := make(map[Category]bool, len(findings))
	var categories []string
	for _, f := range findings {
		if !seen[f.Category] {
			seen[f.Category] = true
			categories = append(categories, string(f.Category))
		}
	}
	return categories
}

// RiskScore folds findings into a 0..1 score: the strongest category's
// weight, nudged up when several distinct categories appear together.
func RiskScore(findings []Finding) float64 {
	if len(findings) == 0 {
		return 0
	}

	var score float64
	distinct := make(map[Category]bool)
	for _, f := range findings {
		distinct[f.Category] = true
		if w := categoryWeight[f.Category]; w > score {
			score = w
		}
	}

	score += 0.1 * float64(len(distinct)-1)
	if score > 1 {
		score = 1
	}
	return score
}
