package retrieval

// DefaultCharsPerToken is the character-to-token ratio used when no
// model-specific tokenizer is available. Optimal values are corpus- and
// model-dependent, so it is configuration rather than a constant.
const DefaultCharsPerToken = 4

// chunkOverheadTokens approximates the cost of the metadata wrapper
// each fragment is rendered with.
const chunkOverheadTokens = 12

// TokenEstimator estimates the language-model input cost of a text.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// RatioEstimator is the fixed-ratio fallback estimator.
type RatioEstimator struct {
	CharsPerToken int
}

// EstimateTokens divides the rune count by the configured ratio,
// returning at least 1 for non-empty text.
func (r RatioEstimator) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	ratio := r.CharsPerToken
	if ratio <= 0 {
		ratio = DefaultCharsPerToken
	}
	estimated := len([]rune(text)) / ratio
	if estimated < 1 {
		return 1
	}
	return estimated
}
