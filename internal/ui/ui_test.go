package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestHeader_Plain(t *testing.T) {
	h := NewHeader("Asphodel Emulator", "lemuria serve",
		Detail{Key: "Serial", Value: "LEM0001"},
		Detail{Key: "TCP", Value: "0.0.0.0:5760"},
	)

	want := "ASPHODEL EMULATOR\nSerial: LEM0001\nTCP: 0.0.0.0:5760\n"
	if got := h.Plain(); got != want {
		t.Errorf("Header.Plain() = %q, want %q", got, want)
	}
}

func TestHeader_Render(t *testing.T) {
	h := NewHeader("status", "lemuria serve", Detail{Key: "Serial", Value: "LEM0001"}).SetWidth(80)
	out := h.Render()

	for _, want := range []string{"STATUS", "lemuria serve", "Serial:", "LEM0001"} {
		if !strings.Contains(out, want) {
			t.Errorf("Header.Render() missing %q", want)
		}
	}
}

func TestResult_Plain(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   string
	}{
		{
			name:   "success",
			result: NewSuccessResult("Configuration written", Detail{Key: "Path", Value: "/tmp/x.yaml"}),
			want:   "Configuration written\n  Path: /tmp/x.yaml\n",
		},
		{
			name:   "failure",
			result: NewFailureResult("Load failed", errors.New("boom"), []string{"check the path"}),
			want:   "FAILED: Load failed\n  error: boom\n  - check the path\n",
		},
		{
			name:   "warning",
			result: NewWarningResult("No captures"),
			want:   "WARNING: No captures\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Plain(); got != tt.want {
				t.Errorf("Result.Plain() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResult_RenderContainsDetails(t *testing.T) {
	r := NewFailureResult("Load failed", errors.New("boom"), []string{"check the path"}).SetWidth(80)
	out := r.Render()

	for _, want := range []string{FailureMarker, "Load failed", "boom", "Troubleshooting:", "check the path"} {
		if !strings.Contains(out, want) {
			t.Errorf("Result.Render() missing %q", want)
		}
	}
}

func TestTable_Plain(t *testing.T) {
	table := NewTable("SERIAL", "ADDRESS", "TAG")
	table.AddRow("WM1", "10.0.0.1:5760", "Bench")
	table.AddRow("WM12345", "10.0.0.22:5760")

	want := "SERIAL   ADDRESS         TAG\n" +
		"WM1      10.0.0.1:5760   Bench\n" +
		"WM12345  10.0.0.22:5760\n"
	if got := table.Plain(); got != want {
		t.Errorf("Table.Plain() =\n%s\nwant\n%s", got, want)
	}
}

func TestPrinter_PlainWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	if p.Styled() {
		t.Fatal("Printer.Styled() = true for a buffer")
	}
	p.PrintSuccess("Done", Detail{Key: "Count", Value: "3"})

	if got, want := buf.String(), "Done\n  Count: 3\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"yes", true},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		if got := Confirm(strings.NewReader(tt.input), &out, "Overwrite?"); got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
