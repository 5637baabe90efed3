package modbus

// NewDemoFleet populates a registry with the three virtual field devices
// used by the bench simulator: a temperature controller, a power meter,
// and a VFD motor controller. Register images use the devices' raw
// fixed-point encodings (tenths of a degree, hundredths of a hertz);
// interpreting them is left to the consumer.
func NewDemoFleet() *DeviceRegistry {
	registry := NewDeviceRegistry()

	temp := NewSlaveDevice(1, "Temperature Controller")
	temp.Nominal = 250
	for i := uint16(0); i < 16; i++ {
		temp.PutCoil(i, false)
		temp.PutDiscreteInput(i, false)
	}
	temp.PutHoldingReg(0, 250)  // Setpoint (25.0 C * 10)
	temp.PutHoldingReg(1, 245)  // Current temperature
	temp.PutHoldingReg(2, 50)   // Output %
	temp.PutHoldingReg(3, 1)    // Status (1=running)
	temp.PutHoldingReg(4, 0)    // Alarms
	temp.PutInputReg(0, 245)    // Temperature sensor 1
	temp.PutInputReg(1, 246)    // Temperature sensor 2
	temp.PutInputReg(2, 50)     // Humidity
	temp.PutInputReg(3, 1013)   // Pressure
	registry.AddDevice(temp)

	power := NewSlaveDevice(2, "Power Meter")
	power.Nominal = 500
	for i := uint16(0); i < 8; i++ {
		power.PutCoil(i, false)
		power.PutDiscreteInput(i, false)
	}
	power.PutHoldingReg(0, 2300) // Voltage (230.0 V * 10)
	power.PutHoldingReg(1, 150)  // Current (15.0 A * 10)
	power.PutHoldingReg(2, 3450) // Power (3.45 kW * 1000)
	power.PutHoldingReg(3, 980)  // Power factor (0.98 * 1000)
	power.PutInputReg(0, 2300)   // Voltage L1
	power.PutInputReg(1, 2305)   // Voltage L2
	power.PutInputReg(2, 2295)   // Voltage L3
	power.PutInputReg(3, 150)    // Current L1
	power.PutInputReg(4, 148)    // Current L2
	power.PutInputReg(5, 152)    // Current L3
	registry.AddDevice(power)

	vfd := NewSlaveDevice(3, "VFD Motor Controller")
	vfd.Nominal = 1000
	vfd.PutCoil(0, false)          // Start/Stop
	vfd.PutCoil(1, false)          // Forward/Reverse
	vfd.PutCoil(2, false)          // Local/Remote
	vfd.PutDiscreteInput(0, false) // Running status
	vfd.PutDiscreteInput(1, false) // Fault status
	vfd.PutDiscreteInput(2, true)  // Ready status
	vfd.PutHoldingReg(0, 5000)     // Frequency setpoint (50.00 Hz * 100)
	vfd.PutHoldingReg(1, 4980)     // Actual frequency
	vfd.PutHoldingReg(2, 750)      // Motor speed (RPM)
	vfd.PutHoldingReg(3, 50)       // Speed reference %
	vfd.PutHoldingReg(4, 0)        // Fault code
	vfd.PutInputReg(0, 4980)       // Output frequency
	vfd.PutInputReg(1, 2300)       // Motor voltage
	vfd.PutInputReg(2, 125)        // Motor current
	vfd.PutInputReg(3, 2800)       // Motor power (2.8 kW)
	vfd.PutInputReg(4, 750)        // Motor speed
	vfd.OnWrite = vfdWriteHook
	registry.AddDevice(vfd)

	return registry
}

// vfdWriteHook mirrors drive behavior: the start coil raises the running
// status input, and a new frequency setpoint drags the actual frequency
// to 99% of it.
func vfdWriteHook(d *SlaveDevice, space RegisterSpace, address uint16, value uint16) {
	switch {
	case space == SpaceCoils && address == 0:
		d.PutDiscreteInput(0, value != 0)
	case space == SpaceHoldingRegisters && address == 0:
		d.holdingRegs[1] = uint16(uint32(value) * 99 / 100)
	}
}
