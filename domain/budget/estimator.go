// Package budget estimates request sizes and decides whether a request fits a
// model's context window.
//
// The estimator is a character-ratio heuristic, not a tokenizer, and rounds
// up throughout.
package budget

// Estimation ratios, in characters per token.
const (
	// DenseCharsPerToken applies to CJK ideographs, which common tokenizers
	// split far more finely than Latin text.
	DenseCharsPerToken = 1.5

	// SparseCharsPerToken applies to every other character.
	SparseCharsPerToken = 4

	// RequestOverhead inflates a request estimate to cover role markers and
	// message framing the estimator cannot see.
	RequestOverhead = 1.1
)

// Content is anything that carries message text, such as a chat message.
type Content interface {
	Content() string
}

// Estimate approximates the number of tokens text will consume.
// Dense-script characters cost ceil(n/1.5) and all other characters cost
// ceil(m/4); each group is rounded up on its own so short CJK strings are
// never rounded down to nothing. Returns 0 only for the empty string.
func Estimate(text string) int {
	dense, sparse := countScripts(text)
	return ceilDiv(dense*2, 3) + ceilDiv(sparse, SparseCharsPerToken)
}

// EstimateRequest sums Estimate over every message and adds the fixed
// RequestOverhead (10%), rounded up.
func EstimateRequest[M Content](messages []M) int {
	total := 0
	for _, m := range messages {
		total += Estimate(m.Content())
	}
	return ceilDiv(total*11, 10)
}

// EstimateTexts is EstimateRequest for plain strings.
func EstimateTexts(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += Estimate(t)
	}
	return ceilDiv(total*11, 10)
}

func countScripts(text string) (dense, sparse int) {
	for _, r := range text {
		if IsDense(r) {
			dense++
		} else {
			sparse++
		}
	}
	return dense, sparse
}

// IsDense reports whether r is a CJK unified or compatibility ideograph.
func IsDense(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF: // unified ideographs
		return true
	case r >= 0x3400 && r <= 0x4DBF: // extension A
		return true
	case r >= 0x20000 && r <= 0x2EBEF: // extensions B-F, I
		return true
	case r >= 0x30000 && r <= 0x323AF: // extensions G-H
		return true
	case r >= 0xF900 && r <= 0xFAFF: // compatibility ideographs
		return true
	case r >= 0x2F800 && r <= 0x2FA1F: // compatibility supplement
		return true
	}
	return false
}

func ceilDiv(n, d int) int {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}
