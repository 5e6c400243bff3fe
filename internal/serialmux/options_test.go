package serialmux

import (
	"testing"

	"go.bug.st/serial"
)

func TestPortOptions_Normalise_Defaults(t *testing.T) {
	got, err := PortOptions{}.Normalise()
	if err != nil {
		t.Fatalf("Normalise() error = %v", err)
	}
	want := PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}
	if got != want {
		t.Errorf("Normalise() = %+v, want %+v", got, want)
	}
	if got.String() != "115200 8N1" {
		t.Errorf("String() = %q, want %q", got.String(), "115200 8N1")
	}
}

func TestPortOptions_Normalise_ExplicitValues(t *testing.T) {
	got, err := PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "even"}.Normalise()
	if err != nil {
		t.Fatalf("Normalise() error = %v", err)
	}
	want := PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"}
	if got != want {
		t.Errorf("Normalise() = %+v, want %+v", got, want)
	}
}

func TestPortOptions_Normalise_NegativeBaudRate(t *testing.T) {
	got, err := PortOptions{BaudRate: -5}.Normalise()
	if err != nil {
		t.Fatalf("Normalise() error = %v", err)
	}
	if got.BaudRate != DefaultBaudRate {
		t.Errorf("negative baud rate should default to %d, got %d", DefaultBaudRate, got.BaudRate)
	}
}

func TestPortOptions_Normalise_AllStandardBaudRates(t *testing.T) {
	for _, rate := range standardBaudRates {
		got, err := PortOptions{BaudRate: rate}.Normalise()
		if err != nil {
			t.Errorf("Normalise() with baud %d: unexpected error %v", rate, err)
		}
		if got.BaudRate != rate {
			t.Errorf("Normalise() with baud %d: got %d", rate, got.BaudRate)
		}
	}
}

func TestPortOptions_Normalise_Errors(t *testing.T) {
	tests := []struct {
		name string
		opts PortOptions
	}{
		{"non-standard baud", PortOptions{BaudRate: 12345}},
		{"too few data bits", PortOptions{DataBits: 4}},
		{"too many data bits", PortOptions{DataBits: 9}},
		{"three stop bits", PortOptions{StopBits: 3}},
		{"mark parity", PortOptions{Parity: "M"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.opts.Normalise(); err == nil {
				t.Errorf("Normalise(%+v) expected error", tt.opts)
			}
		})
	}
}

func TestPortOptions_Equal(t *testing.T) {
	if !(PortOptions{}).Equal(PortOptions{BaudRate: 115200, Parity: "none"}) {
		t.Error("zero options should equal explicit 115200 8N1")
	}
	if (PortOptions{}).Equal(PortOptions{BaudRate: 9600}) {
		t.Error("different baud rates should not be equal")
	}
	if (PortOptions{Parity: "X"}).Equal(PortOptions{Parity: "X"}) {
		t.Error("invalid options are never equal")
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	tests := []struct {
		name     string
		opts     PortOptions
		parity   serial.Parity
		stopBits serial.StopBits
	}{
		{"defaults", PortOptions{}, serial.NoParity, serial.OneStopBit},
		{"odd two stop", PortOptions{Parity: "O", StopBits: 2}, serial.OddParity, serial.TwoStopBits},
		{"even", PortOptions{Parity: "E"}, serial.EvenParity, serial.OneStopBit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, err := tt.opts.SerialMode()
			if err != nil {
				t.Fatalf("SerialMode() error = %v", err)
			}
			if mode.BaudRate != 115200 || mode.DataBits != 8 {
				t.Errorf("mode = %+v", mode)
			}
			if mode.Parity != tt.parity {
				t.Errorf("Parity = %v, want %v", mode.Parity, tt.parity)
			}
			if mode.StopBits != tt.stopBits {
				t.Errorf("StopBits = %v, want %v", mode.StopBits, tt.stopBits)
			}
		})
	}

	if _, err := (PortOptions{BaudRate: 1}).SerialMode(); err == nil {
		t.Error("SerialMode() should reject invalid options")
	}
}

func TestOpenPort_InvalidOptions(t *testing.T) {
	if _, err := OpenPort("/dev/null", PortOptions{DataBits: 12}); err == nil {
		t.Error("OpenPort() should fail before touching the device")
	}
	if _, err := NewRealSerialMux("/dev/null", PortOptions{StopBits: 5}); err == nil {
		t.Error("NewRealSerialMux() should fail before touching the device")
	}
}
