package multiimage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fpang/gemini-image-orchestrator/internal/keywords"
)

// Rule enforces one shared element on every context that opts in.
type Rule struct {
	Element  Element `json:"element"`
	Priority int     `json:"priority"`
	Phrase   string  `json:"phrase"`
}

// ConsistencyProfile is derived once per batch and shared read-only by every
// context.
type ConsistencyProfile struct {
	Level               ConsistencyLevel     `json:"level"`
	CommonElements      map[Element][]string `json:"commonElements"`
	ConsistencyRules    []Rule               `json:"consistencyRules"`
	EnforcementPriority []Element            `json:"enforcementPriority"`
}

// ruleElements lists, in priority order, the elements each level enforces.
var ruleElements = map[ConsistencyLevel][]Element{
	LevelLoose:    nil,
	LevelModerate: {ElementCharacter, ElementStyle},
	LevelStrict:   {ElementCharacter, ElementStyle, ElementEnvironment, ElementLighting},
}

// BuildConsistencyProfile extracts the shared vocabulary of basePrompt and
// the rule set for level.
func BuildConsistencyProfile(basePrompt string, level ConsistencyLevel) *ConsistencyProfile {
	p := &ConsistencyProfile{
		Level:          level,
		CommonElements: extractElements(basePrompt),
	}
	for i, e := range ruleElements[level] {
		p.ConsistencyRules = append(p.ConsistencyRules, Rule{
			Element:  e,
			Priority: i + 1,
			Phrase:   maintainingPhrase(e, p.CommonElements[e]),
		})
		p.EnforcementPriority = append(p.EnforcementPriority, e)
	}
	return p
}

func maintainingPhrase(e Element, terms []string) string {
	if len(terms) == 0 {
		return fmt.Sprintf("maintaining consistent %s", e)
	}
	return fmt.Sprintf("maintaining consistent %s (%s)", e, strings.Join(terms, ", "))
}

// newContext builds the base context for one requirement.
func newContext(basePrompt string, req ImageRequirement, profile *ConsistencyProfile) *ImageGenerationContext {
	prompt := strings.TrimSpace(basePrompt)
	if sp := strings.TrimSpace(req.SpecificPrompt); sp != "" {
		prompt = strings.TrimRight(prompt, ". ") + ". " + sp
	}
	return &ImageGenerationContext{
		BasePrompt:         basePrompt,
		EnhancedPrompt:     prompt,
		Requirement:        req,
		ConsistencyProfile: profile,
	}
}

// applyRules appends every applicable rule phrase that is not already
// present, in rule priority order.
func applyRules(c *ImageGenerationContext) {
	if c.ConsistencyProfile == nil || c.Requirement.Consistency == nil {
		return
	}
	rules := append([]Rule(nil), c.ConsistencyProfile.ConsistencyRules...)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })

	for _, r := range rules {
		if !c.Requirement.Consistency.enabled(r.Element) {
			continue
		}
		if strings.Contains(strings.ToLower(c.EnhancedPrompt), strings.ToLower(r.Phrase)) {
			continue
		}
		c.EnhancedPrompt = strings.TrimRight(c.EnhancedPrompt, ". ") + ", " + r.Phrase
	}
}

// MaintainConsistencyAcrossImages applies the profile's rules to every
// context and returns the shared-vocabulary overlap of the resulting prompts.
func MaintainConsistencyAcrossImages(contexts []*ImageGenerationContext) float64 {
	prompts := make([]string, 0, len(contexts))
	for _, c := range contexts {
		applyRules(c)
		prompts = append(prompts, c.EnhancedPrompt)
	}
	return promptConsistency(prompts)
}

// promptConsistency is |tokens shared by all prompts| / |tokens in any prompt|.
func promptConsistency(prompts []string) float64 {
	if len(prompts) <= 1 {
		return 1
	}
	counts := make(map[string]int)
	for _, p := range prompts {
		for _, tok := range keywords.Normalize(p).Tokens() {
			counts[tok]++
		}
	}
	if len(counts) == 0 {
		return 1
	}
	shared := 0
	for _, n := range counts {
		if n == len(prompts) {
			shared++
		}
	}
	return float64(shared) / float64(len(counts))
}
