package reader

import (
	"fmt"
	"sort"
	"strings"
)

// ScoreReader ranks a reader name; contactless interfaces win over contact slots
// of the same device.
func ScoreReader(name string) int {
	s := strings.ToLower(name)
	pts := 0
	if strings.Contains(s, "utrust") || strings.Contains(s, "identiv") {
		pts += 2
	}
	for _, k := range []string{"contactless", " cl", "nfc", "picc"} {
		if strings.Contains(s, k) {
			pts += 5
			break
		}
	}
	return pts
}

// SelectReader returns want if it is listed, otherwise the highest scoring
// name (ties broken alphabetically).
func SelectReader(names []string, want string) (string, error) {
	if len(names) == 0 {
		return "", ErrNoReader
	}
	if want != "" {
		for _, n := range names {
			if n == want {
				return n, nil
			}
		}
		return "", fmt.Errorf("reader %q: %w", want, ErrNoReader)
	}

	sorted := append([]string(nil), names...)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := ScoreReader(sorted[i]), ScoreReader(sorted[j])
		if si != sj {
			return si > sj
		}
		return sorted[i] < sorted[j]
	})
	return sorted[0], nil
}
