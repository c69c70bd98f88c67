package guardrails

// checkModelDowngrade returns the model to use for this request, swapping to
// a cheaper alternative once the estimated session cost crosses the
// configured threshold. Returns the original model when no downgrade applies.
func checkModelDowngrade(cfg ModelLimitConfig, model string, sessionTokens int) string {
	if !cfg.Enabled || cfg.CostThresholdUSD == 0 {
		return model
	}

	cost := estimateSessionCost(cfg.CostPerMToken, model, sessionTokens)
	if cost >= cfg.CostThresholdUSD {
		if downgrade, ok := cfg.DowngradeMap[model]; ok {
			return downgrade
		}
	}
	return model
}

// estimateSessionCost approximates session spend as
// tokens / 1M * cost_per_million_tokens. Unknown models estimate to zero so
// they never trigger a downgrade.
func estimateSessionCost(costMap map[string]float64, model string, tokens int) float64 {
	costPerMToken, ok := costMap[model]
	if !ok {
		return 0
	}
	return float64(tokens) / 1_000_000.0 * costPerMToken
}
