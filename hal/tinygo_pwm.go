//go:build tinygo && baremetal

package hal

import "machine"

// pwmCarrierHz is the output frequency of the duty channel.
const pwmCarrierHz = 20000

type pwmDevice interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	SetTop(top uint32)
	Top() uint32
	Set(channel uint8, value uint32)
	Enable(enable bool)
}

func pwmForPin(pin machine.Pin) pwmDevice {
	slice, err := machine.PWMPeripheral(pin)
	if err != nil {
		return nil
	}
	switch slice {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	case 7:
		return machine.PWM7
	}
	return nil
}

// newMachinePWM starts a carrier on pin at zero duty. Boards where the pin
// has no free slice get a channel that only records the duty.
func newMachinePWM(pin machine.Pin) PWM {
	dev := pwmForPin(pin)
	if dev == nil {
		return &virtualPWM{}
	}
	if err := dev.Configure(machine.PWMConfig{Period: 1e9 / pwmCarrierHz}); err != nil {
		return &virtualPWM{}
	}
	ch, err := dev.Channel(pin)
	if err != nil {
		return &virtualPWM{}
	}
	dev.SetTop(0xFFFF)
	p := &counterPWM{top: dev.Top(), set: func(v uint32) { dev.Set(ch, v) }}
	p.SetDuty(0)
	dev.Enable(true)
	return p
}
