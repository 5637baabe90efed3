package modbus

// SimulatedTransport resolves Engine operations directly against a
// DeviceRegistry. No byte-level framing happens here; the registry
// honors the same external contract as live hardware (addressing,
// read-only enforcement, defaults for sparse maps).
type SimulatedTransport struct {
	registry *DeviceRegistry
}

// NewSimulatedTransport creates a transport backed by registry. The
// transport takes ownership of the registry; callers keep populating
// devices through it before the bus goes live.
func NewSimulatedTransport(registry *DeviceRegistry) *SimulatedTransport {
	return &SimulatedTransport{registry: registry}
}

// Registry exposes the backing registry for diagnostics (device info,
// fleet setup). Bus data access still goes through the Engine.
func (t *SimulatedTransport) Registry() *DeviceRegistry {
	return t.registry
}

func (t *SimulatedTransport) ReadCoils(slaveID uint8, address, quantity uint16) ([]bool, error) {
	return t.registry.ReadBits(slaveID, SpaceCoils, address, quantity)
}

func (t *SimulatedTransport) ReadDiscreteInputs(slaveID uint8, address, quantity uint16) ([]bool, error) {
	return t.registry.ReadBits(slaveID, SpaceDiscreteInputs, address, quantity)
}

func (t *SimulatedTransport) ReadHoldingRegisters(slaveID uint8, address, quantity uint16) ([]uint16, error) {
	return t.registry.ReadWords(slaveID, SpaceHoldingRegisters, address, quantity)
}

func (t *SimulatedTransport) ReadInputRegisters(slaveID uint8, address, quantity uint16) ([]uint16, error) {
	return t.registry.ReadWords(slaveID, SpaceInputRegisters, address, quantity)
}

func (t *SimulatedTransport) WriteSingleCoil(slaveID uint8, address uint16, value bool) error {
	return t.registry.WriteBit(slaveID, SpaceCoils, address, value)
}

func (t *SimulatedTransport) WriteSingleRegister(slaveID uint8, address, value uint16) error {
	return t.registry.WriteWords(slaveID, SpaceHoldingRegisters, address, []uint16{value})
}

func (t *SimulatedTransport) WriteMultipleCoils(slaveID uint8, address uint16, values []bool) error {
	for i, v := range values {
		if err := t.registry.WriteBit(slaveID, SpaceCoils, address+uint16(i), v); err != nil {
			return err
		}
	}
	return nil
}

func (t *SimulatedTransport) WriteMultipleRegisters(slaveID uint8, address uint16, values []uint16) error {
	return t.registry.WriteWords(slaveID, SpaceHoldingRegisters, address, values)
}

// Close releases nothing; simulated devices live for the process lifetime.
func (t *SimulatedTransport) Close() error {
	return nil
}
