package provider

import "strings"

// Venue is the market category a symbol belongs to.
type Venue string

const (
	Domestic      Venue = "domestic"
	International Venue = "international"
)

// Classifier maps a symbol to its venue. It must be pure.
type Classifier func(symbol string) Venue

// DefaultDomesticSuffixes are the exchange suffixes treated as domestic.
var DefaultDomesticSuffixes = []string{".KS", ".KQ"}

// NewClassifier returns a classifier that treats six-digit numeric codes as
// domestic, optionally followed by one of suffixes. Everything else is international.
func NewClassifier(suffixes ...string) Classifier {
	if len(suffixes) == 0 {
		suffixes = DefaultDomesticSuffixes
	}
	upper := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			upper = append(upper, s)
		}
	}
	return func(symbol string) Venue {
		code := strings.ToUpper(strings.TrimSpace(symbol))
		for _, s := range upper {
			if strings.HasSuffix(code, s) {
				code = strings.TrimSuffix(code, s)
				break
			}
		}
		if isNumericCode(code) {
			return Domestic
		}
		return International
	}
}

func isNumericCode(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
