package hal

import "sync/atomic"

// virtualPWM remembers the last duty it was given.
type virtualPWM struct {
	duty atomic.Uint32
}

func (p *virtualPWM) SetDuty(duty uint16) error {
	p.duty.Store(uint32(duty))
	return nil
}

func (p *virtualPWM) Duty() uint16 { return uint16(p.duty.Load()) }

// counterPWM drives a compare register whose counter wraps at top.
type counterPWM struct {
	virtualPWM
	top uint32
	set func(compare uint32)
}

func (p *counterPWM) SetDuty(duty uint16) error {
	p.virtualPWM.SetDuty(duty)
	p.set(dutyCompare(duty, p.top))
	return nil
}

// dutyCompare scales a 0..0xFFFF duty to a compare value in 0..top.
func dutyCompare(duty uint16, top uint32) uint32 {
	return uint32(uint64(duty) * uint64(top) / 0xFFFF)
}
