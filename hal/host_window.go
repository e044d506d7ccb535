//go:build !tinygo && cgo

package hal

import (
	"context"
	"errors"
	"image"

	"sparkrt/internal/buildinfo"

	"github.com/hajimehoshi/ebiten/v2"
)

// RunWindow opens a desktop window that displays the framebuffer and
// forwards keyboard input. run starts on its own goroutine with a context
// that ends when the window closes; frame is called once per display frame.
// It blocks until the window closes or run fails.
func RunWindow(ctx context.Context, h HAL, run func(context.Context) error, frame func() error) error {
	hh, ok := h.(*hostHAL)
	if !ok {
		return errors.New("window: requires the host HAL")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	g := &hostGame{h: hh, ctx: ctx, done: done, frame: frame}
	ebiten.SetWindowTitle("sparkrt (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(hh.fb.width*2, hh.fb.height*2)
	ebiten.SetTPS(60)
	err := ebiten.RunGame(g)
	cancel()
	if g.exited {
		return g.runErr
	}
	if runErr := <-done; err == nil {
		err = runErr
	}
	return err
}

type hostGame struct {
	h       *hostHAL
	ctx     context.Context
	done    <-chan error
	frame   func() error
	img     *image.RGBA
	fbImg   *ebiten.Image
	scratch []byte

	exited bool
	runErr error
}

func (g *hostGame) Update() error {
	select {
	case err := <-g.done:
		g.exited, g.runErr = true, err
		return ebiten.Termination
	case <-g.ctx.Done():
		return ebiten.Termination
	default:
	}
	g.h.kbd.poll()
	if g.frame != nil {
		if err := g.frame(); err != nil {
			return err
		}
	}
	return nil
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	fb := g.h.fb
	if g.img == nil || g.img.Bounds().Dx() != fb.width || g.img.Bounds().Dy() != fb.height {
		g.img = image.NewRGBA(image.Rect(0, 0, fb.width, fb.height))
		g.scratch = make([]byte, len(fb.buf))
		if g.fbImg != nil {
			g.fbImg.Deallocate()
		}
		g.fbImg = ebiten.NewImage(fb.width, fb.height)
	}

	fb.snapshotRGB565(g.scratch)

	src := g.scratch
	dst := g.img.Pix
	for i := 0; i+1 < len(src) && i/2*4+3 < len(dst); i += 2 {
		r, gg, b := rgb888From565(uint16(src[i]) | uint16(src[i+1])<<8)
		j := (i / 2) * 4
		dst[j+0] = r
		dst[j+1] = gg
		dst[j+2] = b
		dst[j+3] = 0xFF
	}

	g.fbImg.WritePixels(g.img.Pix)
	screen.DrawImage(g.fbImg, nil)
}

func (g *hostGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.h.fb.width, g.h.fb.height
}
