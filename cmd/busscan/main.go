package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	modbus "github.com/fieldline/gomodbus"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a bus config JSON file")
		port       = flag.String("port", "", "serial port (overrides config)")
		baud       = flag.Int("baud", 0, "baud rate (overrides config)")
		fromID     = flag.Uint("from", 1, "first slave ID to probe")
		toID       = flag.Uint("to", 247, "last slave ID to probe")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg := modbus.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = modbus.LoadConfig(*configPath)
		if err != nil {
			log.WithError(err).Fatal("failed to load config")
		}
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *baud > 0 {
		cfg.BaudRate = *baud
	}
	if *fromID < 1 || *toID > 247 || *fromID > *toID {
		log.Fatalf("invalid scan range %d-%d", *fromID, *toID)
	}

	level := modbus.LevelInfo
	if *verbose {
		level = modbus.LevelDebug
	}
	transport, err := modbus.OpenSerialTransport(cfg, modbus.NewSimpleLogger(os.Stderr, level, "busscan"))
	if err != nil {
		log.WithError(err).Fatal("failed to open serial port")
	}
	engine := modbus.NewEngine(transport, nil)
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"port": cfg.Port,
		"baud": cfg.BaudRate,
		"from": *fromID,
		"to":   *toID,
	}).Info("scanning bus")

	found, err := engine.ScanBus(ctx, uint8(*fromID), uint8(*toID))
	if err != nil {
		log.WithError(err).Warn("scan interrupted")
	}
	if len(found) == 0 {
		log.Info("no devices responded")
		return
	}
	for _, id := range found {
		log.WithField("slave_id", id).Info("device responded")
	}
}
