package trix

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/trix/pkg/errors"
)

// Mode selects how a search token may match longer indexed words.
type Mode int

const (
	// ModeExact matches only indexed words equal to the token.
	ModeExact Mode = iota
	// ModeExpand also matches words the token is a prefix of, provided the
	// rest of the word is short or ends at a word boundary.
	ModeExpand
	// ModeFirstFive matches any word the token is a prefix of once the
	// token is at least five characters long.
	ModeFirstFive
)

func (m Mode) String() string {
	switch m {
	case ModeExact:
		return "exact"
	case ModeExpand:
		return "expand"
	case ModeFirstFive:
		return "firstFive"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "exact":
		return ModeExact, nil
	case "expand", "":
		return ModeExpand, nil
	case "firstFive", "firstfive", "first5":
		return ModeFirstFive, nil
	default:
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, 400, "unknown search mode %q", s)
	}
}

// reasonablePrefix decides whether prefix may stand for word. A negative
// result rejects the match; otherwise it is the number of letters of word
// left unmatched, counted up to the next word-part boundary.
func reasonablePrefix(prefix, word string, mode Mode) int {
	suffixLen := len(word) - len(prefix)
	if suffixLen == 0 {
		return 0
	}
	switch mode {
	case ModeExpand:
		if len(prefix) >= 3 {
			suffix := word[len(prefix):]
			end := wordPartEnd(prefix, suffix)
			if end <= 2 {
				return end
			}
			if end == 3 && suffix[:3] == "ing" {
				return end
			}
		}
	case ModeFirstFive:
		if len(prefix) >= 5 {
			return wordPartEnd(prefix, word[len(prefix):])
		}
	}
	return -1
}

// wordPartEnd finds the first boundary in suffix: '-', '.', '_', a digit
// (unless prefix already ends in one) or the end of the suffix.
func wordPartEnd(prefix, suffix string) int {
	prefixEndsInDigit := isDigit(prefix[len(prefix)-1])
	for i := 0; i < len(suffix); i++ {
		c := suffix[i]
		if c == '-' || c == '.' || c == '_' || (!prefixEndsInDigit && isDigit(c)) {
			return i
		}
	}
	return len(suffix)
}
