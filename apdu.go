// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwwallet

import (
	"encoding/binary"
	"fmt"
)

// claWallet is the instruction class of every command the companion app
// understands. Replies to other classes are how we detect a foreign app.
const claWallet byte = 0xe0

// maxAPDUPayload is the largest payload one command frame can carry; the
// length field is a single byte.
const maxAPDUPayload = 255

// Instruction opcodes of the companion wallet app.
const (
	insGetAddress   byte = 0x02 // public key + address for a derivation path
	insSignTx       byte = 0x04 // sign a transaction digest after on-device review
	insGetAppConfig byte = 0x06 // companion app configuration and version
	insSignPersonal byte = 0x08 // sign a prefixed personal message digest
)

// P1/P2 parameter values.
const (
	p1ReturnAddress  byte = 0x00 // return the address silently
	p1ConfirmAddress byte = 0x01 // display on device and wait for approval
	p1FirstChunk     byte = 0x00 // first payload chunk of a signing request
	p1NextChunk      byte = 0x80 // continuation chunk
	p2NoChainCode    byte = 0x00 // do not append the BIP-32 chain code
)

// Status words terminating every response. swOK is the only success code.
const (
	swOK              uint16 = 0x9000
	swDenied          uint16 = 0x6985 // user rejected on device
	swSecurityStatus  uint16 = 0x6982 // security status not satisfied (locked)
	swDeviceLocked    uint16 = 0x5515 // device PIN locked
	swChannelLocked   uint16 = 0x6faa // channel held by a locked session
	swIncorrectData   uint16 = 0x6a80 // payload rejected by the app
	swWrongLength     uint16 = 0x6700 // length field inconsistent
	swIncorrectP1P2   uint16 = 0x6b00 // parameter bytes unknown to the app
	swInsNotSupported uint16 = 0x6d00 // instruction unknown (wrong app open)
	swClaNotSupported uint16 = 0x6e00 // class unknown (wrong app open)
	swAppNotOpen      uint16 = 0x6511 // no app open on the device
)

// newCommand builds one command frame: [cla][ins][p1][p2][len][payload].
func newCommand(ins, p1, p2 byte, payload []byte) ([]byte, error) {
	if len(payload) > maxAPDUPayload {
		return nil, fmt.Errorf("%w: command payload %d exceeds %d bytes", ErrCommunication, len(payload), maxAPDUPayload)
	}
	frame := make([]byte, 0, 5+len(payload))
	frame = append(frame, claWallet, ins, p1, p2, byte(len(payload)))
	frame = append(frame, payload...)
	return frame, nil
}

// parseResponse splits a raw response into payload and trailing status word.
func parseResponse(raw []byte) ([]byte, uint16, error) {
	if len(raw) < 2 {
		return nil, 0, fmt.Errorf("%w: response too short (%d bytes)", ErrCommunication, len(raw))
	}
	status := binary.BigEndian.Uint16(raw[len(raw)-2:])
	return raw[:len(raw)-2], status, nil
}

// statusError maps a status word to the module error taxonomy. The mapping is
// total: every non-success word yields a specific typed error, never a raw
// code.
func statusError(status uint16) error {
	switch status {
	case swOK:
		return nil
	case swDenied:
		return ErrUserCancelled
	case swSecurityStatus, swDeviceLocked, swChannelLocked:
		return fmt.Errorf("%w (status 0x%04x)", ErrLocked, status)
	case swIncorrectData:
		return fmt.Errorf("%w: device rejected the payload", ErrSigningFailed)
	case swWrongLength, swIncorrectP1P2:
		return fmt.Errorf("%w: malformed command (status 0x%04x)", ErrCommunication, status)
	case swInsNotSupported, swClaNotSupported, swAppNotOpen:
		return fmt.Errorf("%w (status 0x%04x)", ErrWrongApp, status)
	default:
		return fmt.Errorf("%w: unexpected status 0x%04x", ErrCommunication, status)
	}
}

// checkResponse parses a raw response and enforces its status word, returning
// the payload only on success.
func checkResponse(raw []byte) ([]byte, error) {
	payload, status, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}
	if err := statusError(status); err != nil {
		return nil, err
	}
	return payload, nil
}
