package version

import "testing"

func TestVersionWord(t *testing.T) {
	saved := Version
	defer func() { Version = saved }()

	tests := []struct {
		ver  string
		want uint32
	}{
		{"1.0.0", 0x19010000},
		{"2.3.4", 0x19020304},
		{"v0.5", 0x19000500},
		{"3.1.7-rc1", 0x19030107},
		{"garbage", 0x19000000},
	}
	for _, tt := range tests {
		Version = tt.ver
		if got := VersionWord(); got != tt.want {
			t.Errorf("VersionWord(%q) = %#x, expected %#x", tt.ver, got, tt.want)
		}
	}
}

func TestBuildID(t *testing.T) {
	saved := BuildTS
	defer func() { BuildTS = saved }()

	BuildTS = "2019-09-18T16:06:08Z"
	if got := BuildID(); got != 1568822768 {
		t.Fatalf("BuildID = %d, expected 1568822768", got)
	}
	BuildTS = "not a time"
	if got := BuildID(); got != 0 {
		t.Fatalf("BuildID = %d, expected 0", got)
	}
}
