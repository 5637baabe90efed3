// Copyright (C) 2025  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package modbus

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// PollPoint is one monitored location on the bus.
type PollPoint struct {
	Name     string        `json:"name"`
	SlaveID  uint8         `json:"slaveId"`
	Space    RegisterSpace `json:"space"`
	Address  uint16        `json:"address"`
	Quantity uint16        `json:"quantity"`
}

// PollSample is the result of reading one PollPoint. Exactly one of Bits
// or Words is set, matching the point's space. Raw values only; scaling
// into physical quantities is the consumer's job.
type PollSample struct {
	Point PollPoint
	Bits  []bool
	Words []uint16
	At    time.Time
}

// OnSampleFunc is a callback type for delivering poll samples.
type OnSampleFunc func(PollSample)

// OnErrorFunc is a callback type for poll errors.
type OnErrorFunc func(PollPoint, error)

// DevicePoller reads a set of points at a fixed interval through an
// Engine. Every probe goes through the engine's bus lock like any other
// caller, so a running poller serializes against ad-hoc operations and
// scans instead of racing them.
type DevicePoller struct {
	engine   *Engine
	interval time.Duration
	points   []PollPoint
	onSample atomic.Value
	onError  atomic.Value
	stopCh   chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewDevicePoller creates a poller over engine with the given interval.
func NewDevicePoller(engine *Engine, interval time.Duration) *DevicePoller {
	return &DevicePoller{
		engine:   engine,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// LoadPoints replaces the monitored point set. Point names must be
// unique; Quantity zero defaults to 1.
func (p *DevicePoller) LoadPoints(points []PollPoint) error {
	seen := make(map[string]bool)
	for i := range points {
		if seen[points[i].Name] {
			return fmt.Errorf("%w: duplicate point name: %s", ErrInvalidParameter, points[i].Name)
		}
		seen[points[i].Name] = true
		if points[i].Quantity == 0 {
			points[i].Quantity = 1
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.points = points
	return nil
}

// SetOnSample sets the callback for successful reads.
func (p *DevicePoller) SetOnSample(fn OnSampleFunc) {
	p.onSample.Store(fn)
}

// SetOnError sets the callback for read errors.
func (p *DevicePoller) SetOnError(fn OnErrorFunc) {
	p.onError.Store(fn)
}

// Start launches the polling loop.
func (p *DevicePoller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	p.wg.Add(1)
	go p.loop()
}

func (p *DevicePoller) loop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.PollOnce()
		}
	}
}

// PollOnce reads every configured point once, dispatching samples and
// errors to the callbacks. A failing point does not stop the sweep.
func (p *DevicePoller) PollOnce() {
	p.mu.Lock()
	points := p.points
	p.mu.Unlock()

	for _, point := range points {
		sample := PollSample{Point: point, At: time.Now()}
		var err error
		switch point.Space {
		case SpaceCoils:
			sample.Bits, err = p.engine.ReadCoils(point.SlaveID, point.Address, point.Quantity)
		case SpaceDiscreteInputs:
			sample.Bits, err = p.engine.ReadDiscreteInputs(point.SlaveID, point.Address, point.Quantity)
		case SpaceHoldingRegisters:
			sample.Words, err = p.engine.ReadHoldingRegisters(point.SlaveID, point.Address, point.Quantity)
		case SpaceInputRegisters:
			sample.Words, err = p.engine.ReadInputRegisters(point.SlaveID, point.Address, point.Quantity)
		default:
			err = fmt.Errorf("%w: unknown space %d", ErrInvalidParameter, point.Space)
		}
		if err != nil {
			if cb := p.onError.Load(); cb != nil {
				cb.(OnErrorFunc)(point, err)
			}
			continue
		}
		if cb := p.onSample.Load(); cb != nil {
			cb.(OnSampleFunc)(sample)
		}
	}
}

// Stop halts the polling loop and waits for it to exit.
func (p *DevicePoller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	started := p.started
	p.mu.Unlock()

	close(p.stopCh)
	if started {
		p.wg.Wait()
	}
}
