package mqtt

import (
	"fmt"
	"strings"
)

// maxTopicLength is the MQTT limit on a UTF-8 encoded topic string.
const maxTopicLength = 65535

// ValidateFilter checks a subscription topic filter.
//
// Rules (MQTT 3.1.1 §4.7):
//   - not empty, at most 65535 bytes, no NUL character
//   - '#' only as the whole last level: "home/#" ok, "home/a#" and "home/#/x" not
//   - '+' only as a whole level: "home/+/voice" ok, "home/a+" not
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	if len(filter) > maxTopicLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidTopic, maxTopicLength)
	}
	if strings.ContainsRune(filter, 0) {
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidTopic, filter)
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") {
			if level != "#" || i != len(levels)-1 {
				return fmt.Errorf("%w: %q misplaces '#'", ErrInvalidTopic, filter)
			}
		}
		if strings.Contains(level, "+") && level != "+" {
			return fmt.Errorf("%w: %q misplaces '+'", ErrInvalidTopic, filter)
		}
	}
	return nil
}

// ValidateFilters checks every filter and returns the first error.
func ValidateFilters(filters []string) error {
	if len(filters) == 0 {
		return fmt.Errorf("%w: no topics", ErrInvalidTopic)
	}
	for _, f := range filters {
		if err := ValidateFilter(f); err != nil {
			return err
		}
	}
	return nil
}
