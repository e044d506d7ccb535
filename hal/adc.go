package hal

import (
	"fmt"
	"math"
	"time"
)

// sineADC is a simulated converter: each channel reads a sine wave around
// mid-scale, phase-shifted by a quarter turn per channel.
type sineADC struct {
	channels int
	period   time.Duration
	now      func() time.Time
	t0       time.Time
}

func newSineADC(channels int, period time.Duration, now func() time.Time) *sineADC {
	if now == nil {
		now = time.Now
	}
	return &sineADC{channels: channels, period: period, now: now, t0: now()}
}

func (a *sineADC) Channels() int { return a.channels }

func (a *sineADC) Read(ch int) (uint16, error) {
	if ch < 0 || ch >= a.channels {
		return 0, fmt.Errorf("adc: channel %d out of range", ch)
	}
	phase := float64(a.now().Sub(a.t0)%a.period) / float64(a.period)
	v := math.Sin(2*math.Pi*phase + float64(ch)*math.Pi/2)
	return uint16(0x8000 + v*0x7FFF), nil
}
