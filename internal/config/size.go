package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

var sizeSuffixes = []struct {
	suffix string
	mult   int64
}{
	{"KiB", KiB}, {"MiB", MiB}, {"GiB", GiB},
	{"K", KiB}, {"M", MiB}, {"G", GiB},
	{"B", 1},
}

// ParseSize parses sizes such as 512MiB, 1G or 1048576. Single letter
// suffixes are binary, as with sgdisk.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	mult := int64(1)
	num := s
	for _, sfx := range sizeSuffixes {
		if strings.HasSuffix(strings.ToUpper(s), strings.ToUpper(sfx.suffix)) {
			mult = sfx.mult
			num = strings.TrimSpace(s[:len(s)-len(sfx.suffix)])
			break
		}
	}

	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}

	if n > math.MaxInt64/mult {
		return 0, fmt.Errorf("size %q out of range", s)
	}

	return n * mult, nil
}
