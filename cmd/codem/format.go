package main

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// languagePair renders "source -> target", with "-" for an undeclared side.
func languagePair(source, target string) string {
	if source == "" && target == "" {
		return "-"
	}
	if source == "" {
		source = "-"
	}
	if target == "" {
		target = "-"
	}
	return source + " -> " + target
}
