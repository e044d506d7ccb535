//go:build !tinygo && cgo

package hal

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

func (k *hostKeyboard) poll() {
	for _, r := range ebiten.AppendInputChars(nil) {
		k.push(KeyEventForRune(r))
	}

	for _, key := range []struct {
		key  ebiten.Key
		code KeyCode
	}{
		{ebiten.KeyArrowUp, KeyUp},
		{ebiten.KeyArrowDown, KeyDown},
		{ebiten.KeyEnter, KeyEnter},
		{ebiten.KeyEscape, KeyEscape},
	} {
		if inpututil.IsKeyJustPressed(key.key) {
			k.push(KeyEvent{Code: key.code, Press: true})
		}
		if inpututil.IsKeyJustReleased(key.key) {
			k.push(KeyEvent{Code: key.code, Press: false})
		}
	}
}
