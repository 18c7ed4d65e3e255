package effect

import (
	"context"
	"fmt"

	"github.com/nerrad567/huettenzauber/internal/hardware/pigpio"
	"github.com/nerrad567/huettenzauber/internal/infrastructure/config"
)

// Actuator switches one physical effect.
//
// Off must be idempotent and reach the safe state from any prior state in
// one call. Release hands the output back after the final Off.
type Actuator interface {
	Prepare(ctx context.Context) error
	On(ctx context.Context) error
	Off(ctx context.Context) error
	Release(ctx context.Context) error
}

// GPIO is the subset of the pigpio client the actuators need.
type GPIO interface {
	SetMode(ctx context.Context, pin int, mode pigpio.Mode) error
	Write(ctx context.Context, pin int, level int) error
	SetPWMFrequency(ctx context.Context, pin int, hz int) error
	SetPWMRange(ctx context.Context, pin int, rng int) error
	SetPWMDutyCycle(ctx context.Context, pin int, duty int) error
}

// FogActuator presses the fog machine trigger with a servo on a PWM pin.
type FogActuator struct {
	gpio GPIO
	cfg  config.FogConfig
}

// NewFogActuator creates a fog actuator on the configured servo pin.
func NewFogActuator(gpio GPIO, cfg config.FogConfig) *FogActuator {
	return &FogActuator{gpio: gpio, cfg: cfg}
}

// Prepare configures PWM and parks the servo.
func (f *FogActuator) Prepare(ctx context.Context) error {
	pin := f.cfg.GPIOPin
	if err := f.gpio.SetMode(ctx, pin, pigpio.ModeOutput); err != nil {
		return fmt.Errorf("fog: set mode: %w", err)
	}
	if err := f.gpio.SetPWMFrequency(ctx, pin, f.cfg.PWMFrequency); err != nil {
		return fmt.Errorf("fog: set pwm frequency: %w", err)
	}
	if err := f.gpio.SetPWMRange(ctx, pin, f.cfg.PWMRange); err != nil {
		return fmt.Errorf("fog: set pwm range: %w", err)
	}
	return f.Off(ctx)
}

// On moves the servo onto the trigger.
func (f *FogActuator) On(ctx context.Context) error {
	if err := f.gpio.SetPWMDutyCycle(ctx, f.cfg.GPIOPin, f.cfg.OnDuty); err != nil {
		return fmt.Errorf("fog: on: %w", err)
	}
	return nil
}

// Off swings the servo through rest into the off position.
func (f *FogActuator) Off(ctx context.Context) error {
	if err := f.gpio.SetPWMDutyCycle(ctx, f.cfg.GPIOPin, f.cfg.RestDuty); err != nil {
		return fmt.Errorf("fog: rest: %w", err)
	}
	if err := f.gpio.SetPWMDutyCycle(ctx, f.cfg.GPIOPin, f.cfg.OffDuty); err != nil {
		return fmt.Errorf("fog: off: %w", err)
	}
	return nil
}

// Release returns the pin to input mode so the servo stops holding.
func (f *FogActuator) Release(ctx context.Context) error {
	if err := f.gpio.SetMode(ctx, f.cfg.GPIOPin, pigpio.ModeInput); err != nil {
		return fmt.Errorf("fog: release: %w", err)
	}
	return nil
}

// ValveActuator opens and closes the water valve relay.
type ValveActuator struct {
	gpio GPIO
	pin  int
}

// NewValveActuator creates a valve actuator on the configured pin.
func NewValveActuator(gpio GPIO, cfg config.WaterConfig) *ValveActuator {
	return &ValveActuator{gpio: gpio, pin: cfg.GPIOPin}
}

func (v *ValveActuator) Prepare(ctx context.Context) error {
	if err := v.gpio.SetMode(ctx, v.pin, pigpio.ModeOutput); err != nil {
		return fmt.Errorf("water: set mode: %w", err)
	}
	return nil
}

func (v *ValveActuator) On(ctx context.Context) error {
	if err := v.gpio.Write(ctx, v.pin, 1); err != nil {
		return fmt.Errorf("water: on: %w", err)
	}
	return nil
}

func (v *ValveActuator) Off(ctx context.Context) error {
	if err := v.gpio.Write(ctx, v.pin, 0); err != nil {
		return fmt.Errorf("water: off: %w", err)
	}
	return nil
}

// Release leaves the pin driven low; a floating relay input could open the valve.
func (v *ValveActuator) Release(context.Context) error {
	return nil
}
