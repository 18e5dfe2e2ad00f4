/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package hangmen

import "unicode"

// Alphabet tracks which of the 26 Latin letters have been guessed in the
// current round. Flags only ever go from false to true; a fresh Alphabet is
// the only way back.
type Alphabet struct {
	letters [26]bool
}

func letterIndex(letter rune) (int, bool) {
	letter = unicode.ToLower(letter)
	if letter < 'a' || letter > 'z' {
		return 0, false
	}
	return int(letter - 'a'), true
}

// Guess marks letter as guessed. Guessing an already guessed letter, or a
// rune outside a-z, does nothing.
func (a *Alphabet) Guess(letter rune) {
	if i, ok := letterIndex(letter); ok {
		a.letters[i] = true
	}
}

func (a *Alphabet) WasGuessed(letter rune) bool {
	i, ok := letterIndex(letter)
	return ok && a.letters[i]
}

// CanSpell reports whether every rune of word has been guessed.
func (a *Alphabet) CanSpell(word string) bool {
	for _, r := range word {
		if !a.WasGuessed(r) {
			return false
		}
	}
	return true
}

// Guessed returns the guessed letters in alphabetical order.
func (a *Alphabet) Guessed() []string {
	out := make([]string, 0, len(a.letters))
	for i, set := range a.letters {
		if set {
			out = append(out, string(rune('a'+i)))
		}
	}
	return out
}

// Mask renders word with unguessed runes replaced by an underscore.
func (a *Alphabet) Mask(word string) string {
	out := make([]rune, 0, len(word))
	for _, r := range word {
		if a.WasGuessed(r) {
			out = append(out, unicode.ToLower(r))
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}
