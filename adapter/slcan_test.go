package adapter

import (
	"bytes"
	"testing"

	"github.com/roffe/govehicle"
)

func TestEncodeSLCanFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame *govehicle.Frame
		want  string
	}{
		{"standard", govehicle.NewFrame(nil, 0x7DF, []byte{0x02, 0x01, 0x0C, 0, 0, 0, 0, 0}), "t7DF802010C0000000000\r"},
		{"short id", govehicle.NewFrame(nil, 0x12, []byte{0xAB}), "t0121AB\r"},
		{"empty", govehicle.NewFrame(nil, 0x100, nil), "t1000\r"},
		{"extended", govehicle.NewExtendedFrame(nil, 0x18DB33F1, []byte{0x02, 0x01, 0x0D}), "T18DB33F1302010D\r"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(encodeSLCanFrame(nil, tt.frame)); got != tt.want {
				t.Errorf("encode = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeSLCanFrame(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantID  uint32
		wantExt bool
		want    []byte
		wantErr bool
	}{
		{name: "body too short", line: "t7E8804410C1AF80000", wantErr: true},
		{name: "standard", line: "t7E8804410C1AF8000000", wantID: 0x7E8, want: []byte{0x04, 0x41, 0x0C, 0x1A, 0xF8, 0, 0, 0}},
		{name: "lower case", line: "t1232abcd", wantID: 0x123, want: []byte{0xAB, 0xCD}},
		{name: "timestamp suffix", line: "t1231FF1A2B", wantID: 0x123, want: []byte{0xFF}},
		{name: "extended", line: "T18DAF1101AA", wantID: 0x18DAF110, wantExt: true, want: []byte{0xAA}},
		{name: "too short", line: "t12", wantErr: true},
		{name: "bad id", line: "tXYZ0", wantErr: true},
		{name: "bad length", line: "t123900", wantErr: true},
		{name: "bad body", line: "t1231ZZ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := decodeSLCanFrame(nil, []byte(tt.line))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("decode(%q) = %s, want error", tt.line, f)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if f.Identifier() != tt.wantID || f.IsExtended() != tt.wantExt || !bytes.Equal(f.Data(), tt.want) {
				t.Errorf("decode(%q) = %s", tt.line, f)
			}
		})
	}
}

func TestSplitSLCanLines(t *testing.T) {
	var lines []string
	collect := func(l []byte) { lines = append(lines, string(l)) }

	rest := splitSLCanLines(nil, []byte("t1231AA\rz\r\rt45"), collect)
	rest = splitSLCanLines(rest, []byte("62BBCC\r\a"), collect)
	want := []string{"t1231AA", "z", "t4562BBCC", "\a"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
	if len(rest) != 0 {
		t.Errorf("rest = %q", rest)
	}
}

func TestSLCanRejectsUnknownSpeed(t *testing.T) {
	d, err := NewSLCan(&Config{Name: "can1", Port: "/dev/null-slcan"})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	d.SetPowerMode(govehicle.PowerOn)
	if err := d.Start(govehicle.ModeActive, 333); err == nil {
		t.Fatal("Start() accepted unsupported speed")
	}
}

func TestDecodeELM327Frame(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantID  uint32
		want    []byte
		wantErr bool
	}{
		{name: "single frame", line: "7E804410C1AF8AAAA", wantID: 0x7E8, want: []byte{0x04, 0x41, 0x0C, 0x1A, 0xF8, 0xAA, 0xAA}},
		{name: "spaces", line: "7E8 03 41 0D 32", wantID: 0x7E8, want: []byte{0x03, 0x41, 0x0D, 0x32}},
		{name: "id only", line: "7E9", wantID: 0x7E9, want: []byte{}},
		{name: "odd body", line: "7E8041", wantErr: true},
		{name: "too long", line: "7E8000102030405060708", wantErr: true},
		{name: "bad id", line: "XYZ00", wantErr: true},
		{name: "bad body", line: "7E8ZZ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := decodeELM327Frame(nil, tt.line)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("decode(%q) = %s, want error", tt.line, f)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if f.Identifier() != tt.wantID || !bytes.Equal(f.Data(), tt.want) {
				t.Errorf("decode(%q) = %s", tt.line, f)
			}
		})
	}
}

func TestELM327InitCommands(t *testing.T) {
	cmds := elm327InitCommands(elm327Protocols[500])
	if cmds[0] != "ATZ" || cmds[4] != "ATSP6" || cmds[len(cmds)-1] != "ATCFC0" {
		t.Errorf("init = %v", cmds)
	}
	if _, ok := elm327Protocols[125]; ok {
		t.Error("125 kbit should not be supported")
	}
}
