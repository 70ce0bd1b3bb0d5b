package oracle

// tokenPrice is USD per one million tokens.
type tokenPrice struct {
	Input  float64
	Output float64
}

// Pricing per backend name. Unknown backends cost zero; audit records still
// carry their token counts.
var pricing = map[string]tokenPrice{
	"groq":      {Input: 0.59, Output: 0.59},
	"openai":    {Input: 5.00, Output: 15.00},
	"anthropic": {Input: 3.00, Output: 15.00},
}

const tokensPerPriceUnit = 1_000_000

// EstimateCost converts a call's token usage into estimated USD.
func EstimateCost(backend string, inputTokens, outputTokens int) float64 {
	price, ok := pricing[backend]
	if !ok {
		return 0
	}
	in := float64(inputTokens) / tokensPerPriceUnit * price.Input
	out := float64(outputTokens) / tokensPerPriceUnit * price.Output
	return in + out
}
