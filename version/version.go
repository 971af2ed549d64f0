package version

import (
	"strconv"
	"strings"
	"time"
)

var (
	Version    = "1.0.0"
	GitHash    = "devsbXXX"
	BuildTS    = "2019-09-18T16:06:08Z" // to be replaced at build time
	APIVersion = "1.0"
	Model      = "FPGAIO-S9"
	Branch     = "eval"
	User       = "user"
)

// Identification nibbles of the VERSION register.
const (
	MINER_TYPE_ANTMINER = 1
	MODEL_S9            = 9
)

var (
	MinerType uint32 = MINER_TYPE_ANTMINER
	ModelId   uint32 = MODEL_S9
)

type VersionConfig struct {
	Version     string `json:"Version"`
	GitHash     string `json:"GitHash"`
	BuildTS     string `json:"BuildTS"`
	Model       string `json:"Model"`
	Branch      string `json:"Branch"`
	User        string `json:"user"`
	APIVersion  string `json:"APIVersion"`
	VersionWord uint32 `json:"VersionWord"`
	BuildId     uint32 `json:"BuildId"`
}

func GetVersionConfig() VersionConfig {
	return VersionConfig{
		Version:     Version,
		GitHash:     GitHash,
		BuildTS:     BuildTS,
		Model:       Model,
		Branch:      Branch,
		User:        User,
		APIVersion:  APIVersion,
		VersionWord: VersionWord(),
		BuildId:     BuildID(),
	}
}

// SemVer splits Version into major.minor.patch. Missing or non numeric parts are zero.
func SemVer() (major, minor, patch uint32) {
	parts := strings.SplitN(strings.TrimPrefix(Version, "v"), ".", 3)
	nums := [3]uint32{}
	for i, p := range parts {
		// tolerate suffixes like "3-rc1"
		if j := strings.IndexFunc(p, func(r rune) bool { return r < '0' || r > '9' }); j >= 0 {
			p = p[:j]
		}
		v, err := strconv.ParseUint(p, 10, 8)
		if err == nil {
			nums[i] = uint32(v)
		}
	}
	return nums[0], nums[1], nums[2]
}

// VersionWord packs the identification into the layout of the VERSION register.
func VersionWord() uint32 {
	major, minor, patch := SemVer()
	return (MinerType&0xf)<<28 | (ModelId&0xf)<<24 | major<<16 | minor<<8 | patch
}

// BuildID is the build timestamp in unix seconds, zero if BuildTS does not parse.
func BuildID() uint32 {
	t, err := time.Parse(time.RFC3339, BuildTS)
	if err != nil {
		return 0
	}
	return uint32(t.Unix())
}
