// Package topic implements MQTT topic filter matching.
package topic

import "strings"

const (
	separator   = "/"
	singleLevel = "+"
	multiLevel  = "#"
)

// Match reports whether topic matches the MQTT filter pattern.
//
// "+" matches exactly one level. "#" matches the remaining levels, zero or
// more, so "a/#" matches "a", "a/b" and "a/b/c". A "#" anywhere but the last
// level makes the pattern match nothing. Matching is case-sensitive.
func Match(pattern, topic string) bool {
	patternLevels := strings.Split(pattern, separator)
	topicLevels := strings.Split(topic, separator)

	for i, level := range patternLevels {
		if level == multiLevel {
			return i == len(patternLevels)-1
		}
		if i >= len(topicLevels) {
			return false
		}
		if level != singleLevel && level != topicLevels[i] {
			return false
		}
	}
	return len(patternLevels) == len(topicLevels)
}
