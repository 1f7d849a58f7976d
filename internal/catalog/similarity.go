package catalog

import (
	"strings"
	"unicode"
)

// Similarity scores how close a and b are in [0,1]. It blends character
// trigram overlap (Dice) with word overlap so that "red mugs" ranks
// "Red Ceramic Mug" above "Blue Teapot".
func Similarity(a, b string) float64 {
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	return 0.6*dice(trigrams(na), trigrams(nb)) + 0.4*tokenOverlap(na, nb)
}

func normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case !space && b.Len() > 0:
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

func trigrams(s string) map[string]int {
	padded := []rune("  " + s + " ")
	out := make(map[string]int, len(padded))
	for i := 0; i+3 <= len(padded); i++ {
		out[string(padded[i:i+3])]++
	}
	return out
}

func dice(a, b map[string]int) float64 {
	var inter, total int
	for g, ca := range a {
		total += ca
		if cb, ok := b[g]; ok {
			inter += min(ca, cb)
		}
	}
	for _, cb := range b {
		total += cb
	}
	if total == 0 {
		return 0
	}
	return 2 * float64(inter) / float64(total)
}

// tokenOverlap matches words by shared stem so that plurals still count.
func tokenOverlap(a, b string) float64 {
	ta, tb := strings.Fields(a), strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	matched := 0
	for _, x := range ta {
		for _, y := range tb {
			if stem(x) == stem(y) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(max(len(ta), len(tb)))
}

func stem(w string) string {
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		return w[:len(w)-1]
	}
	return w
}
