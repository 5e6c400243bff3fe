package serialmux

import "testing"

func TestClassifyPayload(t *testing.T) {
	tests := []struct {
		payload string
		want    string
	}{
		{"Starte Page Turner...", EventTypeStarting},
		{"Befehl empfangen: n", EventTypeReceived},
		{"Command received: p", EventTypeReceived},
		{"Warte auf Bluetooth Verbindung...", EventTypeWaiting},
		{"waiting for bluetooth connection", EventTypeWaiting},
		{"Unbekannter Befehl", EventTypeUnknownCommand},
		{"  UNKNOWN COMMAND\r", EventTypeUnknownCommand},
		{"ets Jun  8 2016 00:22:57", EventTypeOther},
		{"", EventTypeOther},
	}
	for _, tt := range tests {
		if got := ClassifyPayload(tt.payload); got != tt.want {
			t.Errorf("ClassifyPayload(%q) = %q, want %q", tt.payload, got, tt.want)
		}
	}
}

func TestReceivedKey(t *testing.T) {
	tests := []struct {
		payload string
		key     byte
		ok      bool
	}{
		{"Befehl empfangen: n", 'n', true},
		{"Befehl empfangen: p\r", 'p', true},
		{"Befehl empfangen", 0, false},
		{"Befehl empfangen: np", 0, false},
		{"Unbekannter Befehl: n", 0, false},
	}
	for _, tt := range tests {
		key, ok := ReceivedKey(tt.payload)
		if key != tt.key || ok != tt.ok {
			t.Errorf("ReceivedKey(%q) = %q, %v; want %q, %v", tt.payload, key, ok, tt.key, tt.ok)
		}
	}
}
