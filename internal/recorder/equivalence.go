package recorder

import "strings"

// errorEquivalence is the fixed table of canonicalized error phrases. Two
// backends rarely word a failure identically; a replay error counts as
// matching the original when both fall into the same phrase family.
var errorEquivalence = [][]string{
	{"no such file", "not found", "does not exist", "no such file or directory"},
	{"not a directory", "not directory"},
	{"is a directory", "is directory"},
	{"permission denied", "access denied"},
	{"already exists", "file exists", "directory already exists"},
	{"directory not empty", "not empty"},
	{"connection refused", "server not running"},
	{"timeout", "timed out"},
	{"failed to stat", "stat failed"},
}

// errorsMatch reports whether a replay error is equivalent to the
// recorded one: exact (case-insensitive) match, or both sides land in the
// same canonical phrase family.
func errorsMatch(playbackErr, recordErr string) bool {
	if playbackErr == "" || recordErr == "" {
		return false
	}
	playback := strings.ToLower(playbackErr)
	record := strings.ToLower(recordErr)
	if playback == record {
		return true
	}
	for _, family := range errorEquivalence {
		if containsAny(playback, family) && containsAny(record, family) {
			return true
		}
	}
	return false
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
