package tgui

import "strings"

// Data formats inline callback data as "action" or "action:payload".
// Payload is kept as-is (no escaping).
func Data(action, payload string) string {
	action = strings.TrimSpace(action)
	if payload == "" {
		return action
	}
	return action + ":" + payload
}

// Split parses callback data produced by Data into (action, payload).
func Split(data string) (action, payload string) {
	data = strings.TrimSpace(data)
	if i := strings.IndexByte(data, ':'); i >= 0 {
		return data[:i], data[i+1:]
	}
	return data, ""
}
