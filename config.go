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
	"encoding/json"
	"os"
	"time"
)

// BusConfig is the static configuration of one serial bus. It is plain
// data; opening the port happens in OpenSerialTransport.
type BusConfig struct {
	Port      string `json:"port"`
	BaudRate  int    `json:"baud_rate"`
	DataBits  int    `json:"data_bits"`
	StopBits  int    `json:"stop_bits"`
	Parity    string `json:"parity"` // "N", "E", "O"
	TimeoutMs int    `json:"timeout_ms"`
}

// DefaultConfig returns the conventional RS-485 field-bus settings.
func DefaultConfig() BusConfig {
	return BusConfig{
		Port:      "/dev/ttyUSB0",
		BaudRate:  9600,
		DataBits:  8,
		StopBits:  1,
		Parity:    "E",
		TimeoutMs: 1000,
	}
}

// Timeout returns the configured round-trip timeout as a duration.
func (c BusConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// LoadConfig reads a BusConfig from a JSON file. Fields absent from the
// file keep their defaults.
func LoadConfig(path string) (BusConfig, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the config as indented JSON.
func (c BusConfig) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
