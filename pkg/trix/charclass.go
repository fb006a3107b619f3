package trix

// Byte classes used to split text into words. A word starts on a letter,
// digit or underscore and may continue through '.' and '-', but never ends
// on one of those.
var (
	wordBeginChar  = buildCharTable(false)
	wordMiddleChar = buildCharTable(true)
)

func buildCharTable(middle bool) [256]bool {
	var table [256]bool
	for c := 0; c < 256; c++ {
		b := byte(c)
		if isAlnum(b) || b == '_' {
			table[c] = true
		}
	}
	if middle {
		table['.'] = true
		table['-'] = true
	}
	return table
}

func isAlnum(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// IsWordBegin reports whether c may start a word.
func IsWordBegin(c byte) bool { return wordBeginChar[c] }

// IsWordMiddle reports whether c may appear inside a word.
func IsWordMiddle(c byte) bool { return wordMiddleChar[c] }

// NextWord finds the next word in text at or after from. It returns the
// half-open byte range of the word and false once text is exhausted.
func NextWord(text string, from int) (start, end int, ok bool) {
	start = from
	for start < len(text) && !wordBeginChar[text[start]] {
		start++
	}
	if start >= len(text) {
		return 0, 0, false
	}
	end = start
	for end < len(text) && wordMiddleChar[text[end]] {
		end++
	}
	for end > start && !wordBeginChar[text[end-1]] {
		end--
	}
	return start, end, true
}

// Words splits text into words in document order.
func Words(text string) []string {
	var words []string
	for pos := 0; ; {
		start, end, ok := NextWord(text, pos)
		if !ok {
			return words
		}
		words = append(words, text[start:end])
		pos = end
	}
}
