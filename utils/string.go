package utils

// TruncateString shortens s to at most max characters, appending "..." when
// truncation occurred. Useful for including payload previews in log entries
// without flooding the log with full message bodies.
//
// Parameters:
//   - s: The string to truncate
//   - max: Maximum number of characters to keep (must be > 0)
//
// Returns:
//   - s unchanged if it fits, otherwise the first max characters plus "..."
func TruncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}

	return s[:max] + "..."
}
