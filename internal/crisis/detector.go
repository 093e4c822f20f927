// Package crisis flags messages that mention self-harm or suicide.
//
// Matching is a plain substring search over lower-cased text. There is no
// negation handling: a hit only shows an informational banner, it never
// blocks a message.
package crisis

import "strings"

var phrases = []string{
	// en
	"kill myself",
	"killing myself",
	"want to die",
	"wanna die",
	"end my life",
	"ending my life",
	"take my own life",
	"suicide",
	"suicidal",
	"self harm",
	"self-harm",
	"hurt myself",
	"cut myself",
	"better off dead",
	"no reason to live",
	// de
	"umbringen",
	"selbstmord",
	"suizid",
	"will sterben",
	"möchte sterben",
	"nicht mehr leben",
	"mir das leben nehmen",
	"mich ritzen",
	"selbstverletzung",
	"mich verletzen",
	"keinen sinn mehr zu leben",
}

// Detect reports whether text contains any known crisis phrase.
func Detect(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
