package serialmux

import "strings"

// SplitLine separates a "<topic> <payload>" record. Leading and trailing
// whitespace is ignored; a line without a payload or a topic is rejected.
func SplitLine(line string) (topic, payload string, ok bool) {
	line = strings.TrimSpace(line)
	i := strings.IndexAny(line, " \t")
	if i <= 0 {
		return "", "", false
	}
	topic = line[:i]
	payload = strings.TrimSpace(line[i+1:])
	if payload == "" {
		return "", "", false
	}
	return topic, payload, true
}
