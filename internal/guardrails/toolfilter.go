package guardrails

// filterTools applies allowlist/blocklist policy to tool names. A non-empty
// allowlist wins over the blocklist; with neither set everything passes.
func filterTools(cfg ToolFilterConfig, tools []string) []string {
	if !cfg.Enabled || len(tools) == 0 {
		return tools
	}

	if len(cfg.Allowlist) > 0 {
		allowed := make(map[string]bool, len(cfg.Allowlist))
		for _, t := range cfg.Allowlist {
			allowed[t] = true
		}
		var result []string
		for _, tool := range tools {
			if allowed[tool] {
				result = append(result, tool)
			}
		}
		return result
	}

	if len(cfg.Blocklist) > 0 {
		blocked := make(map[string]bool, len(cfg.Blocklist))
		for _, t := range cfg.Blocklist {
			blocked[t] = true
		}
		var result []string
		for _, tool := range tools {
			if !blocked[tool] {
				result = append(result, tool)
			}
		}
		return result
	}

	return tools
}
