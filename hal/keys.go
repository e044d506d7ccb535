package hal

// KeyEventForRune maps a typed character to a key press, as a terminal
// delivers them.
func KeyEventForRune(r rune) KeyEvent {
	switch r {
	case '\r', '\n':
		return KeyEvent{Code: KeyEnter, Press: true}
	case 0x1b:
		return KeyEvent{Code: KeyEscape, Press: true}
	case ' ':
		return KeyEvent{Code: KeySpace, Press: true, Rune: r}
	}
	return KeyEvent{Press: true, Rune: r}
}
