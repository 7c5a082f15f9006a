// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

// Family-A driver: speaks the framed command protocol over a USB HID
// transport. The wire protocol matches the vendor's Ethereum companion app
// documentation.

package hwwallet

import (
	"context"
	"fmt"
)

// digestLength is the size of the hashes submitted for signing.
const digestLength = 32

// minLedgerAppVersion is the oldest companion app this driver drives.
var minLedgerAppVersion = [3]byte{1, 2, 0}

type ledgerDriver struct {
	admin     DeviceAdmin
	transport Transport
	version   [3]byte // companion app version, zero until probed
}

func newLedgerDriver(admin DeviceAdmin) driver {
	return &ledgerDriver{admin: admin}
}

// Open connects the first attached device and probes the companion app. A
// failed probe releases the transport before returning, so a wrong app or a
// locked device never leaks the handle.
func (d *ledgerDriver) Open(ctx context.Context) error {
	if d.admin.CountDevices() == 0 {
		return fmt.Errorf("%w: no device attached", ErrDeviceNotConnected)
	}
	transport, err := d.admin.Connect(0)
	if err != nil {
		return err
	}
	d.transport = transport

	version, err := d.appVersion(ctx)
	if err != nil {
		d.Close()
		return err
	}
	if versionBelow(version, minLedgerAppVersion) {
		d.Close()
		return fmt.Errorf("%w: companion app v%d.%d.%d, need at least v%d.%d.%d",
			ErrFirmwareOutdated, version[0], version[1], version[2],
			minLedgerAppVersion[0], minLedgerAppVersion[1], minLedgerAppVersion[2])
	}
	d.version = version
	log.Infof("companion app v%d.%d.%d online", version[0], version[1], version[2])
	return nil
}

func (d *ledgerDriver) Close() error {
	d.version = [3]byte{}
	if d.transport == nil {
		return nil
	}
	transport := d.transport
	d.transport = nil
	return transport.Close()
}

func (d *ledgerDriver) Status() string {
	if d.transport == nil {
		return "offline"
	}
	return fmt.Sprintf("companion app v%d.%d.%d online", d.version[0], d.version[1], d.version[2])
}

// appVersion probes the companion app configuration. The reply carries a
// flags byte followed by the major/minor/patch version bytes.
func (d *ledgerDriver) appVersion(ctx context.Context) ([3]byte, error) {
	reply, err := d.exchange(ctx, insGetAppConfig, 0, 0, nil)
	if err != nil {
		return [3]byte{}, err
	}
	if len(reply) != 4 {
		return [3]byte{}, fmt.Errorf("%w: invalid app configuration reply (%d bytes)", ErrWrongApp, len(reply))
	}
	var version [3]byte
	copy(version[:], reply[1:])
	return version, nil
}

// Derive requests the public key at path. The reply layout is
// [keyLen:1][key][addrLen:1][addr ascii]; only the key is consumed, the
// address is derived locally from it.
func (d *ledgerDriver) Derive(ctx context.Context, path DerivationPath, confirm bool) ([]byte, error) {
	payload, err := path.Serialize()
	if err != nil {
		return nil, err
	}
	p1 := p1ReturnAddress
	if confirm {
		p1 = p1ConfirmAddress
	}
	reply, err := d.exchange(ctx, insGetAddress, p1, p2NoChainCode, payload)
	if err != nil {
		return nil, err
	}
	if len(reply) < 1 || len(reply) < 1+int(reply[0]) {
		return nil, fmt.Errorf("%w: reply lacks public key entry", ErrCommunication)
	}
	pub := reply[1 : 1+int(reply[0])]
	if len(pub) != 65 || pub[0] != 0x04 {
		return nil, fmt.Errorf("%w: unexpected public key layout (%d bytes)", ErrCommunication, len(pub))
	}
	return pub, nil
}

// SignHash submits a transaction digest for on-device review. The request is
// path followed by the digest, chunked to the command payload limit; the user
// confirmation wait happens inside the final exchange.
func (d *ledgerDriver) SignHash(ctx context.Context, path DerivationPath, digest []byte) ([]byte, error) {
	return d.sign(ctx, insSignTx, path, digest)
}

// SignPersonal submits a personal message digest under the message-signing
// instruction, so the device presents it as a message rather than a spend.
func (d *ledgerDriver) SignPersonal(ctx context.Context, path DerivationPath, digest []byte) ([]byte, error) {
	return d.sign(ctx, insSignPersonal, path, digest)
}

func (d *ledgerDriver) sign(ctx context.Context, ins byte, path DerivationPath, digest []byte) ([]byte, error) {
	if len(digest) != digestLength {
		return nil, fmt.Errorf("%w: digest must be %d bytes, got %d", ErrSigningFailed, digestLength, len(digest))
	}
	serialized, err := path.Serialize()
	if err != nil {
		return nil, err
	}
	payload := append(serialized, digest...)

	var (
		p1    = p1FirstChunk
		reply []byte
	)
	for len(payload) > 0 {
		chunk := maxAPDUPayload
		if chunk > len(payload) {
			chunk = len(payload)
		}
		reply, err = d.exchange(ctx, ins, p1, 0, payload[:chunk])
		if err != nil {
			return nil, err
		}
		payload = payload[chunk:]
		p1 = p1NextChunk
	}
	if len(reply) != SignatureLength+1 {
		return nil, fmt.Errorf("%w: reply lacks signature (%d bytes)", ErrSigningFailed, len(reply))
	}
	return reply, nil
}

// exchange builds one command, round-trips it and enforces the status word.
func (d *ledgerDriver) exchange(ctx context.Context, ins, p1, p2 byte, payload []byte) ([]byte, error) {
	if d.transport == nil {
		return nil, ErrDeviceNotConnected
	}
	command, err := newCommand(ins, p1, p2, payload)
	if err != nil {
		return nil, err
	}
	raw, err := d.transport.Exchange(ctx, command)
	if err != nil {
		return nil, err
	}
	return checkResponse(raw)
}

func versionBelow(v, min [3]byte) bool {
	for i := range v {
		if v[i] != min[i] {
			return v[i] < min[i]
		}
	}
	return false
}
