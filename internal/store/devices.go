// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/xbeestat/pkg/link"
	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// noAddr16 marks a device without a known 16-bit address.
const noAddr16 = -1

// SaveDevices replaces the stored devices of protocol p with devices.
func (db *DB) SaveDevices(ctx context.Context, p xbee.Protocol, devices []link.DeviceSnapshot) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM devices WHERE protocol = ?", int(p)); err != nil {
		return fmt.Errorf("clearing devices: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO devices
		(addr64, addr16, node_id, protocol, device_type, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range devices {
		addr16 := noAddr16
		if a, ok := d.Addr16.Get(); ok {
			addr16 = int(a)
		}
		if _, err := stmt.ExecContext(ctx,
			d.Addr64.String(),
			addr16,
			d.NodeID,
			int(p),
			int(d.DeviceType),
			d.FirstSeen.UTC().Format(time.RFC3339Nano),
			d.LastSeen.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("saving device %s: %w", d.Addr64, err)
		}
	}

	return tx.Commit()
}

// SaveRegistry stores every device currently in r.
func (db *DB) SaveRegistry(ctx context.Context, r *link.Registry) error {
	devices := r.Devices()
	snaps := make([]link.DeviceSnapshot, 0, len(devices))
	for _, d := range devices {
		snaps = append(snaps, d.Snapshot())
	}
	return db.SaveDevices(ctx, r.Protocol(), snaps)
}

// LoadDevices returns the stored devices of protocol p ordered by address.
func (db *DB) LoadDevices(ctx context.Context, p xbee.Protocol) ([]link.DeviceSnapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT addr64, addr16, node_id, device_type, first_seen, last_seen
		FROM devices WHERE protocol = ? ORDER BY addr64, addr16`, int(p))
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var out []link.DeviceSnapshot
	for rows.Next() {
		var (
			addr64, first, last string
			addr16, deviceType  int
			nodeID              string
		)
		if err := rows.Scan(&addr64, &addr16, &nodeID, &deviceType, &first, &last); err != nil {
			return nil, err
		}

		s := link.DeviceSnapshot{
			NodeID:     nodeID,
			Protocol:   p,
			DeviceType: xbee.DeviceType(deviceType),
			Addr16:     xbee.No16(),
		}
		if s.Addr64, err = xbee.ParseAddress64(addr64); err != nil {
			return nil, fmt.Errorf("stored address %q: %w", addr64, err)
		}
		if addr16 != noAddr16 {
			s.Addr16 = xbee.Some16(xbee.Address16(addr16))
		}
		if s.FirstSeen, err = time.Parse(time.RFC3339Nano, first); err != nil {
			return nil, fmt.Errorf("stored first_seen for %s: %w", addr64, err)
		}
		if s.LastSeen, err = time.Parse(time.RFC3339Nano, last); err != nil {
			return nil, fmt.Errorf("stored last_seen for %s: %w", addr64, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RestoreRegistry loads the stored devices for r's protocol into r and
// returns how many were restored.
func (db *DB) RestoreRegistry(ctx context.Context, r *link.Registry) (int, error) {
	snaps, err := db.LoadDevices(ctx, r.Protocol())
	if err != nil {
		return 0, err
	}
	if err := r.Restore(snaps); err != nil {
		return 0, err
	}
	return len(snaps), nil
}

// DeleteDevice removes a stored device by 64-bit address.
func (db *DB) DeleteDevice(ctx context.Context, addr64 xbee.Address64) (bool, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM devices WHERE addr64 = ?", addr64.String())
	if err != nil {
		return false, fmt.Errorf("deleting device: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
