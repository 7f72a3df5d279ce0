package booking

import "strings"

// PairCount is the number of functional essential pairs.
const PairCount = 3

// pairs is the essential pair table. Both members of a pair are served together.
var pairs = [PairCount][2]string{
	{"battery", "cable"},
	{"locker", "umbrella"},
	{"inflationservice", "valetpark"},
}

// Pair returns the partner of the named essential. The lookup ignores case.
func Pair(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, p := range pairs {
		switch lower {
		case p[0]:
			return p[1], true
		case p[1]:
			return p[0], true
		}
	}
	return "", false
}

// Canonical returns the lower-case table name of a recognized essential.
func Canonical(name string) (string, bool) {
	partner, ok := Pair(name)
	if !ok {
		return "", false
	}
	other, _ := Pair(partner)
	return other, true
}

// Essentials lists every recognized essential in table order.
func Essentials() []string {
	out := make([]string, 0, 2*PairCount)
	for _, p := range pairs {
		out = append(out, p[0], p[1])
	}
	return out
}

// Logical groups requested essentials into pairs, keeping the first spelling
// the booking used for each pair. Unknown names are dropped.
func Logical(requested []string) [][2]string {
	var out [][2]string
	seen := make(map[string]bool, len(requested))
	for _, name := range requested {
		canonical, ok := Canonical(name)
		if !ok || seen[canonical] {
			continue
		}
		partner, _ := Pair(canonical)
		seen[canonical] = true
		seen[partner] = true
		out = append(out, [2]string{name, partner})
	}
	return out
}
