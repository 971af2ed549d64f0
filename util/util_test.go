package util

import "testing"

func TestMergeByteLanes(t *testing.T) {
	tests := []struct {
		old, v uint32
		strobe uint8
		want   uint32
	}{
		{0x11223344, 0xaabbccdd, 0x0, 0x11223344},
		{0x11223344, 0xaabbccdd, 0xf, 0xaabbccdd},
		{0x11223344, 0xaabbccdd, 0x1, 0x112233dd},
		{0x11223344, 0xaabbccdd, 0x6, 0x11bbcc44},
		{0x11223344, 0xaabbccdd, 0x8, 0xaa223344},
	}
	for _, tt := range tests {
		if got := MergeByteLanes(tt.old, tt.v, tt.strobe); got != tt.want {
			t.Errorf("MergeByteLanes(%#x, %#x, %#x) = %#x, expected %#x", tt.old, tt.v, tt.strobe, got, tt.want)
		}
	}
}

func TestSaturatingInc(t *testing.T) {
	if got := SaturatingInc(41); got != 42 {
		t.Fatalf("got %d, expected 42", got)
	}
	if got := SaturatingInc(0xffffffff); got != 0xffffffff {
		t.Fatalf("got %#x, expected saturation", got)
	}
}

func TestParseUint32(t *testing.T) {
	for in, want := range map[string]uint32{"12": 12, "0x10": 16, " 0b101 ": 5} {
		got, err := ParseUint32(in)
		if err != nil || got != want {
			t.Errorf("ParseUint32(%q) = %d, %v, expected %d", in, got, err, want)
		}
	}
	if _, err := ParseUint32("0x1ffffffff"); err == nil {
		t.Errorf("expected range error")
	}
}

func TestHexStringFromNumber(t *testing.T) {
	if got := HexStringFromNumber(2, 0xabc); got != "0abc" {
		t.Fatalf("got %s", got)
	}
	if got := HexStringFromNumber(1, 0xabc); got != "bc" {
		t.Fatalf("got %s", got)
	}
}
