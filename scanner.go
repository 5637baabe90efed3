package modbus

import (
	"context"
	"fmt"
)

// ScanBus probes every slave ID in [startID, endID], ascending, with a
// single one-register holding-register read under the engine's standard
// timeout, and returns the IDs that answered. Any failure - timeout, CRC
// mismatch, missing device - marks the ID absent; the scanner records
// presence only and does not distinguish failure causes, so a listed ID
// is not a statement about checksum-level health.
//
// Each probe locks the bus individually, so a scan can be cancelled via
// ctx between probes without leaving the bus held.
func (e *Engine) ScanBus(ctx context.Context, startID, endID uint8) ([]uint8, error) {
	if err := validateSlaveID(startID); err != nil {
		return nil, err
	}
	if err := validateSlaveID(endID); err != nil {
		return nil, err
	}
	if startID > endID {
		return nil, fmt.Errorf("%w: scan range %d-%d", ErrInvalidParameter, startID, endID)
	}

	var found []uint8
	for id := startID; ; id++ {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		if _, err := e.ReadHoldingRegisters(id, 0, 1); err == nil {
			found = append(found, id)
			e.logf("modbus: scan found device at slave ID %d", id)
		}
		if id == endID {
			break
		}
	}
	return found, nil
}
