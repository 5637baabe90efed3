package modbus

import (
	"errors"
	"testing"
	"time"
)

func TestPollerPollOnce(t *testing.T) {
	e := newFleetEngine()
	p := NewDevicePoller(e, time.Second)

	err := p.LoadPoints([]PollPoint{
		{Name: "tc.setpoint", SlaveID: 1, Space: SpaceHoldingRegisters, Address: 0, Quantity: 1},
		{Name: "vfd.running", SlaveID: 3, Space: SpaceCoils, Address: 0}, // Quantity defaults to 1
		{Name: "ghost", SlaveID: 99, Space: SpaceHoldingRegisters, Address: 0, Quantity: 1},
	})
	if err != nil {
		t.Fatalf("LoadPoints failed: %v", err)
	}

	samples := make(map[string]PollSample)
	failures := make(map[string]error)
	p.SetOnSample(func(s PollSample) { samples[s.Point.Name] = s })
	p.SetOnError(func(pt PollPoint, err error) { failures[pt.Name] = err })

	p.PollOnce()

	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	assertUint16Equal(t, []uint16{250}, samples["tc.setpoint"].Words)
	if len(samples["vfd.running"].Bits) != 1 {
		t.Errorf("vfd.running: expected 1 bit, got %d", len(samples["vfd.running"].Bits))
	}
	if !errors.Is(failures["ghost"], ErrTimeout) && !errors.Is(failures["ghost"], ErrDeviceNotFound) {
		t.Errorf("ghost point: got %v, expected a device failure", failures["ghost"])
	}
}

func TestPollerRejectsDuplicateNames(t *testing.T) {
	p := NewDevicePoller(newFleetEngine(), time.Second)
	err := p.LoadPoints([]PollPoint{
		{Name: "a", SlaveID: 1, Space: SpaceCoils},
		{Name: "a", SlaveID: 2, Space: SpaceCoils},
	})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("got %v, expected ErrInvalidParameter", err)
	}
}

func TestPollerStartStop(t *testing.T) {
	e := newFleetEngine()
	p := NewDevicePoller(e, 5*time.Millisecond)
	p.LoadPoints([]PollPoint{
		{Name: "tc.temperature", SlaveID: 1, Space: SpaceInputRegisters, Address: 0, Quantity: 1},
	})

	sampled := make(chan struct{}, 64)
	p.SetOnSample(func(PollSample) {
		select {
		case sampled <- struct{}{}:
		default:
		}
	})

	p.Start()
	select {
	case <-sampled:
	case <-time.After(2 * time.Second):
		t.Fatal("no sample delivered")
	}
	p.Stop()

	// Stop after Stop is a no-op; Start after Stop never relaunches.
	p.Stop()
	p.Start()
}
