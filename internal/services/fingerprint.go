package services

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Fingerprint identifies the result-affecting inputs of a run: the mode, the
// input table, and every routing parameter. A resume compares it against the
// journaled value and refuses to mix runs with different inputs.
func Fingerprint(inputPath string, p BatchParams) string {
	parts := []string{
		p.Mode,
		inputPath,
		strconv.FormatInt(p.DepartAt.Unix(), 10),
		strings.Join(p.Modes, ","),
		p.EgressMode,
		strconv.Itoa(int(p.MaxWalkTime.Seconds())),
		strconv.Itoa(int(p.MaxTripDuration.Seconds())),
		strconv.FormatBool(p.ShortestPathOnly),
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
