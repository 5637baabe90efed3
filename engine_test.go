package modbus

import (
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingTransport records how many operations reached the transport
// layer; the engine must reject bad parameters before any I/O happens.
type countingTransport struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (c *countingTransport) enter() {
	c.calls.Add(1)
	n := c.inFlight.Add(1)
	for {
		max := c.maxSeen.Load()
		if n <= max || c.maxSeen.CompareAndSwap(max, n) {
			break
		}
	}
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
}

func (c *countingTransport) leave() { c.inFlight.Add(-1) }

func (c *countingTransport) ReadCoils(slaveID uint8, address, quantity uint16) ([]bool, error) {
	c.enter()
	defer c.leave()
	return make([]bool, quantity), nil
}

func (c *countingTransport) ReadDiscreteInputs(slaveID uint8, address, quantity uint16) ([]bool, error) {
	c.enter()
	defer c.leave()
	return make([]bool, quantity), nil
}

func (c *countingTransport) ReadHoldingRegisters(slaveID uint8, address, quantity uint16) ([]uint16, error) {
	c.enter()
	defer c.leave()
	return make([]uint16, quantity), nil
}

func (c *countingTransport) ReadInputRegisters(slaveID uint8, address, quantity uint16) ([]uint16, error) {
	c.enter()
	defer c.leave()
	return make([]uint16, quantity), nil
}

func (c *countingTransport) WriteSingleCoil(slaveID uint8, address uint16, value bool) error {
	c.enter()
	defer c.leave()
	return nil
}

func (c *countingTransport) WriteSingleRegister(slaveID uint8, address, value uint16) error {
	c.enter()
	defer c.leave()
	return nil
}

func (c *countingTransport) WriteMultipleCoils(slaveID uint8, address uint16, values []bool) error {
	c.enter()
	defer c.leave()
	return nil
}

func (c *countingTransport) WriteMultipleRegisters(slaveID uint8, address uint16, values []uint16) error {
	c.enter()
	defer c.leave()
	return nil
}

func (c *countingTransport) Close() error { return nil }

func newFleetEngine() *Engine {
	registry := NewDemoFleet()
	return NewEngine(NewSimulatedTransport(registry), nil)
}

func TestEngineRejectsInvalidParameters(t *testing.T) {
	stub := &countingTransport{}
	e := NewEngine(stub, nil)

	testCases := []struct {
		name string
		call func() error
	}{
		{"slave 0", func() error { _, err := e.ReadCoils(0, 0, 1); return err }},
		{"slave 248", func() error { _, err := e.ReadHoldingRegisters(248, 0, 1); return err }},
		{"zero bits", func() error { _, err := e.ReadCoils(1, 0, 0); return err }},
		{"2001 bits", func() error { _, err := e.ReadDiscreteInputs(1, 0, 2001); return err }},
		{"zero registers", func() error { _, err := e.ReadInputRegisters(1, 0, 0); return err }},
		{"126 registers", func() error { _, err := e.ReadHoldingRegisters(1, 0, 126); return err }},
		{"empty coil write", func() error { return e.WriteMultipleCoils(1, 0, nil) }},
		{"1969 coil write", func() error { return e.WriteMultipleCoils(1, 0, make([]bool, 1969)) }},
		{"empty register write", func() error { return e.WriteMultipleRegisters(1, 0, nil) }},
		{"124 register write", func() error { return e.WriteMultipleRegisters(1, 0, make([]uint16, 124)) }},
		{"range overflow", func() error { _, err := e.ReadHoldingRegisters(1, 0xFFFF, 2); return err }},
	}

	for _, tc := range testCases {
		if err := tc.call(); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("%s: got %v, expected ErrInvalidParameter", tc.name, err)
		}
	}
	if n := stub.calls.Load(); n != 0 {
		t.Errorf("%d operations reached the transport despite invalid parameters", n)
	}
}

func TestEngineBoundaryParametersAccepted(t *testing.T) {
	stub := &countingTransport{}
	e := NewEngine(stub, nil)

	if _, err := e.ReadCoils(1, 0, 2000); err != nil {
		t.Errorf("2000 bits rejected: %v", err)
	}
	if _, err := e.ReadHoldingRegisters(247, 0, 125); err != nil {
		t.Errorf("125 registers rejected: %v", err)
	}
	if err := e.WriteMultipleCoils(1, 0, make([]bool, 1968)); err != nil {
		t.Errorf("1968-coil write rejected: %v", err)
	}
	if err := e.WriteMultipleRegisters(1, 0, make([]uint16, 123)); err != nil {
		t.Errorf("123-register write rejected: %v", err)
	}
}

func TestEngineReadReturnsExactCount(t *testing.T) {
	e := newFleetEngine()

	bits, err := e.ReadCoils(3, 0, 13)
	if err != nil {
		t.Fatalf("ReadCoils failed: %v", err)
	}
	if len(bits) != 13 {
		t.Errorf("expected 13 bits, got %d", len(bits))
	}

	words, err := e.ReadInputRegisters(2, 2300, 6)
	if err != nil {
		t.Fatalf("ReadInputRegisters failed: %v", err)
	}
	if len(words) != 6 {
		t.Errorf("expected 6 registers, got %d", len(words))
	}
}

func TestEngineJitteredReadStaysNearNominal(t *testing.T) {
	registry := NewDemoFleet()
	registry.SetJitter(rand.New(rand.NewSource(99)), 0.02)
	e := NewEngine(NewSimulatedTransport(registry), nil)

	// Slave 1 holds 250 in holding register 0 with Nominal 250, so the
	// jitter bound is 5 counts either way.
	for i := 0; i < 50; i++ {
		words, err := e.ReadHoldingRegisters(1, 0, 1)
		if err != nil {
			t.Fatalf("ReadHoldingRegisters failed: %v", err)
		}
		if words[0] < 245 || words[0] > 255 {
			t.Fatalf("read %d, expected a value in [245, 255]", words[0])
		}
	}
}

func TestEngineWriteReadConsistency(t *testing.T) {
	e := newFleetEngine()

	if err := e.WriteSingleRegister(1, 0, 300); err != nil {
		t.Fatalf("WriteSingleRegister failed: %v", err)
	}
	words, err := e.ReadHoldingRegisters(1, 0, 1)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters failed: %v", err)
	}
	assertUint16Equal(t, []uint16{300}, words)

	if err := e.WriteMultipleRegisters(1, 10, []uint16{11, 22, 33}); err != nil {
		t.Fatalf("WriteMultipleRegisters failed: %v", err)
	}
	words, err = e.ReadHoldingRegisters(1, 10, 3)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters failed: %v", err)
	}
	assertUint16Equal(t, []uint16{11, 22, 33}, words)

	if err := e.WriteMultipleCoils(1, 4, []bool{true, true, false, true}); err != nil {
		t.Fatalf("WriteMultipleCoils failed: %v", err)
	}
	bits, err := e.ReadCoils(1, 4, 4)
	if err != nil {
		t.Fatalf("ReadCoils failed: %v", err)
	}
	assertBoolEqual(t, []bool{true, true, false, true}, bits)
}

func TestEngineStateTransitions(t *testing.T) {
	e := newFleetEngine()

	if e.State() != StateIdle {
		t.Errorf("initial state: got %v, expected Idle", e.State())
	}

	if _, err := e.ReadHoldingRegisters(1, 0, 1); err != nil {
		t.Fatalf("ReadHoldingRegisters failed: %v", err)
	}
	if e.State() != StateComplete {
		t.Errorf("after success: got %v, expected Complete", e.State())
	}

	// Slave 200 does not exist in the fleet; the probe times out.
	if _, err := e.ReadHoldingRegisters(200, 0, 1); err == nil {
		t.Fatal("read of absent slave succeeded")
	}
	if e.State() != StateTimeout {
		t.Errorf("after absent slave: got %v, expected Timeout", e.State())
	}
}

func TestEngineSerializesBusAccess(t *testing.T) {
	stub := &countingTransport{delay: 2 * time.Millisecond}
	e := NewEngine(stub, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if _, err := e.ReadHoldingRegisters(1, 0, 1); err != nil {
					t.Errorf("ReadHoldingRegisters failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if max := stub.maxSeen.Load(); max > 1 {
		t.Errorf("observed %d concurrent exchanges on the bus", max)
	}
	if n := stub.calls.Load(); n != 40 {
		t.Errorf("expected 40 exchanges, got %d", n)
	}
}
