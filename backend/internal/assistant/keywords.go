package assistant

import (
	"fmt"
	"regexp"
)

type category struct {
	name     string
	keywords []string
}

// Order matters: the first matching category is reported.
var harmfulKeywords = []category{
	{"violence", []string{"bomb", "kill", "murder", "shoot", "attack", "destroy", "harm", "hurt", "violence", "weapon", "gun", "knife", "explosive"}},
	{"threats", []string{"threat", "threaten", "intimidate", "scare", "terrorize", "menace"}},
	{"inappropriate", []string{"hate", "racism", "sexism", "harassment", "bully", "abuse"}},
	{"illegal", []string{"drugs", "steal", "robbery", "crime", "illegal", "cheat"}},
	{"sexual", []string{"sex", "sexual", "nude", "porn", "inappropriate touching"}},
}

type keywordRule struct {
	keyword  string
	category string
	re       *regexp.Regexp
}

// Keywords match at the start of a word so "skill" does not trip "kill".
var keywordRules = func() []keywordRule {
	var rules []keywordRule
	for _, c := range harmfulKeywords {
		for _, kw := range c.keywords {
			rules = append(rules, keywordRule{
				keyword:  kw,
				category: c.name,
				re:       regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw)),
			})
		}
	}
	return rules
}()

// keywordFilter is the first moderation layer. It never touches the network.
func keywordFilter(text string) (Verdict, bool) {
	for _, r := range keywordRules {
		if r.re.MatchString(text) {
			return Verdict{
				Allowed:    false,
				Confidence: 0.9,
				Reason:     fmt.Sprintf("Contains harmful keyword: '%s' (category: %s)", r.keyword, r.category),
				Category:   r.category,
			}, true
		}
	}
	return Verdict{}, false
}
