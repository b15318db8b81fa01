// Package utils provides small helper functions shared across packages,
// such as JSON object detection and string truncation for log output.
package utils

import "encoding/json"

// IsJsonObject reports whether the string is a valid JSON object.
// It attempts to unmarshal the string into a map[string]interface{} and
// returns true only if unmarshaling succeeds.
//
// Parameters:
//   - s: The string to validate
//
// Returns:
//   - true if s is valid JSON representing an object, false otherwise
func IsJsonObject(s string) bool {
	var js map[string]interface{}
	return json.Unmarshal([]byte(s), &js) == nil
}
