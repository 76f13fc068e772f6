package stream

import "github.com/podiumhq/podium/internal/responses"

// EstimateTokens approximates a token count as ceil(chars/4). Deliberately
// rough: good enough for free-tier accounting and display, not for billing.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// FinalizeUsage returns the usage to persist for a finished request. A
// report that is absent or has TotalTokens == 0 is replaced wholesale by the
// chars/4 estimate over prompt and completion text; a report with a nonzero
// total is trusted as-is, including any zero sub-counts it carries.
func FinalizeUsage(reported *responses.Usage, prompt, completion string) responses.Usage {
	if reported != nil && reported.TotalTokens > 0 {
		return *reported
	}

	p := EstimateTokens(prompt)
	c := EstimateTokens(completion)
	return responses.Usage{
		PromptTokens:     p,
		CompletionTokens: c,
		TotalTokens:      p + c,
		Estimated:        true,
	}
}
