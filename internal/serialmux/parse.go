package serialmux

import "strings"

const (
	EventTypeStarting       = "starting"
	EventTypeReceived       = "received"
	EventTypeWaiting        = "waiting"
	EventTypeUnknownCommand = "unknown_command"
	EventTypeOther          = "other"
)

// The relay firmware prints German status lines; English variants are
// accepted for rebuilt firmware.
var payloadPhrases = []struct {
	phrase string
	event  string
}{
	{"unbekannter befehl", EventTypeUnknownCommand},
	{"unknown command", EventTypeUnknownCommand},
	{"befehl empfangen", EventTypeReceived},
	{"command received", EventTypeReceived},
	{"warte auf bluetooth", EventTypeWaiting},
	{"waiting for bluetooth", EventTypeWaiting},
	{"starte page turner", EventTypeStarting},
	{"starting page turner", EventTypeStarting},
}

// ClassifyPayload inspects a line printed by the relay and returns an event
// type token.
func ClassifyPayload(payload string) string {
	p := strings.ToLower(strings.TrimSpace(payload))
	for _, m := range payloadPhrases {
		if strings.Contains(p, m.phrase) {
			return m.event
		}
	}
	return EventTypeOther
}

// ReceivedKey extracts the key byte from a "command received" line, e.g.
// "Befehl empfangen: n".
func ReceivedKey(payload string) (byte, bool) {
	if ClassifyPayload(payload) != EventTypeReceived {
		return 0, false
	}
	_, after, ok := strings.Cut(payload, ":")
	if !ok {
		return 0, false
	}
	after = strings.TrimSpace(after)
	if len(after) != 1 {
		return 0, false
	}
	return after[0], true
}
