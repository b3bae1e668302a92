package matching

import "strings"

// Closed tag1 set. Every processed trade ends up with exactly one of these.
const (
	TagPreTradeFound       = "Pre trade found"
	TagPostTradeFound      = "Post trade found"
	TagNoCallRecordFound   = "No call record found"
	TagNoPostTradeFound    = "No Post trade found"
	TagUnsupportedLanguage = "Unsupported Language"
	TagNonObservatoryCall  = "Non observatory call"
)

const (
	TagDetailsMatching    = "Details matching"
	TagDetailsNotMatching = "Details not matching"
)

// Flags are the three independent confirmation dimensions for one
// trade-call pairing.
type Flags struct {
	Script   bool
	Price    bool
	Quantity bool
}

// Count returns how many dimensions agreed.
func (f Flags) Count() int {
	n := 0
	if f.Script {
		n++
	}
	if f.Price {
		n++
	}
	if f.Quantity {
		n++
	}
	return n
}

// Perfect reports full agreement on all three dimensions.
func (f Flags) Perfect() bool {
	return f.Script && f.Price && f.Quantity
}

// Classify maps the three booleans to the three-part classification label.
// pre tells whether the candidate call preceded the order placement.
func Classify(pre bool, f Flags) (tag1, tag2, tag3 string) {
	found := TagPostTradeFound
	if pre {
		found = TagPreTradeFound
	}

	switch f.Count() {
	case 3:
		return found, TagDetailsMatching, ""
	case 2:
		return found, TagDetailsNotMatching, failedDimension(f)
	case 1:
		if f.Script {
			return found, TagDetailsNotMatching, "Price & Quantity"
		}
		// Script disagreed and only one of price/quantity held: the call
		// does not evidence this trade.
		return TagNoPostTradeFound, "", ""
	default:
		return TagNonObservatoryCall, "", ""
	}
}

func failedDimension(f Flags) string {
	switch {
	case !f.Script:
		return "Script"
	case !f.Price:
		return "Price"
	default:
		return "Quantity"
	}
}

// Label joins the non-empty tag parts into the human-readable
// voiceRecordingConfirmations string.
func Label(tag1, tag2, tag3 string) string {
	parts := make([]string, 0, 3)
	for _, t := range []string{tag1, tag2, tag3} {
		if t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " / ")
}
