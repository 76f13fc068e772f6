package repair

// Backward and forward scans over raw JSON text. Escaping is decided the
// same way everywhere: a quote is unescaped when preceded by an even number
// of consecutive backslashes.

type scanState int

const (
	stateOutside scanState = iota
	stateInString
	stateEscaped
)

// endsInsideString reports whether a forward scan of s terminates inside an
// unterminated string literal. A trailing backslash escape counts as inside.
func endsInsideString(s string) bool {
	state := stateOutside
	for i := 0; i < len(s); i++ {
		switch state {
		case stateOutside:
			if s[i] == '"' {
				state = stateInString
			}
		case stateInString:
			switch s[i] {
			case '\\':
				state = stateEscaped
			case '"':
				state = stateOutside
			}
		case stateEscaped:
			state = stateInString
		}
	}
	return state != stateOutside
}

// isUnescaped reports whether the quote at index i is preceded by an even
// number of consecutive backslashes.
func isUnescaped(s string, i int) bool {
	backslashes := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		backslashes++
	}
	return backslashes%2 == 0
}

// lastUnescapedQuote returns the index of the last unescaped double quote
// in s, or -1 if there is none.
func lastUnescapedQuote(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '"' && isUnescaped(s, i) {
			return i
		}
	}
	return -1
}

// prevUnescapedQuote returns the index of the last unescaped double quote
// strictly before position before, or -1 if there is none.
func prevUnescapedQuote(s string, before int) int {
	for i := before - 1; i >= 0; i-- {
		if s[i] == '"' && isUnescaped(s, i) {
			return i
		}
	}
	return -1
}

// lastNonSpace returns the last byte of s that is not JSON whitespace, or 0
// when s is all whitespace.
func lastNonSpace(s string) byte {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
		default:
			return s[i]
		}
	}
	return 0
}

// lastCompleteItemEnd returns the index of the closing quote of the last
// complete item in s: an unescaped quote immediately followed by a comma
// (whitespace and newlines may follow the comma). Returns -1 if no such
// boundary exists.
func lastCompleteItemEnd(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != '"' || !isUnescaped(s, i) {
			continue
		}
		if i+1 < len(s) && s[i+1] == ',' {
			return i
		}
	}
	return -1
}
