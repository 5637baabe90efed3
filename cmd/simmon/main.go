package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	modbus "github.com/fieldline/gomodbus"
)

func main() {
	var (
		interval = flag.Duration("interval", time.Second, "polling interval")
		seed     = flag.Int64("seed", time.Now().UnixNano(), "jitter random seed")
		jitter   = flag.Float64("jitter", 0.02, "jitter fraction of device nominal magnitude")
	)
	flag.Parse()

	log := logrus.New()

	registry := modbus.NewDemoFleet()
	registry.SetJitter(rand.New(rand.NewSource(*seed)), *jitter)
	engine := modbus.NewEngine(modbus.NewSimulatedTransport(registry), nil)
	defer engine.Close()

	for _, id := range []uint8{1, 2, 3} {
		info, err := registry.Info(id)
		if err != nil {
			continue
		}
		log.WithFields(logrus.Fields{
			"slave_id":          info.SlaveID,
			"name":              info.Name,
			"holding_registers": info.HoldingRegisters,
			"input_registers":   info.InputRegisters,
		}).Info("simulated device online")
	}

	poller := modbus.NewDevicePoller(engine, *interval)
	err := poller.LoadPoints([]modbus.PollPoint{
		{Name: "tc.setpoint", SlaveID: 1, Space: modbus.SpaceHoldingRegisters, Address: 0, Quantity: 1},
		{Name: "tc.temperature", SlaveID: 1, Space: modbus.SpaceHoldingRegisters, Address: 1, Quantity: 1},
		{Name: "pm.phases", SlaveID: 2, Space: modbus.SpaceInputRegisters, Address: 0, Quantity: 6},
		{Name: "vfd.frequency", SlaveID: 3, Space: modbus.SpaceHoldingRegisters, Address: 0, Quantity: 2},
		{Name: "vfd.running", SlaveID: 3, Space: modbus.SpaceDiscreteInputs, Address: 0, Quantity: 3},
	})
	if err != nil {
		log.WithError(err).Fatal("failed to load poll points")
	}

	poller.SetOnSample(func(s modbus.PollSample) {
		fields := logrus.Fields{"point": s.Point.Name, "slave_id": s.Point.SlaveID}
		if s.Words != nil {
			fields["values"] = s.Words
		} else {
			fields["bits"] = s.Bits
		}
		log.WithFields(fields).Info("sample")
	})
	poller.SetOnError(func(p modbus.PollPoint, err error) {
		log.WithField("point", p.Name).WithError(err).Warn("poll failed")
	})

	poller.Start()
	defer poller.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info("shutting down")
}
