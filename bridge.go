// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

// Family-B devices are not driven over raw USB: the vendor ships a local
// bridge service owning the device, and clients speak JSON over loopback
// HTTP to it. Bridge abstracts that service so protocol logic stays
// independent of the delivery mechanism and tests can substitute a double.

package hwwallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DefaultBridgeURL is the loopback endpoint the vendor bridge listens on.
const DefaultBridgeURL = "http://127.0.0.1:21325"

// bridgeOrigin satisfies the bridge's same-origin allowlist.
const bridgeOrigin = "https://localhost"

// BridgeManifest identifies the calling application to the bridge. It must
// be registered before any other call.
type BridgeManifest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// BridgeFeatures is the device metadata reported by the bridge, used to
// verify the device is usable before any operation.
type BridgeFeatures struct {
	Vendor       string `json:"vendor"`
	Model        string `json:"model"`
	MajorVersion int    `json:"majorVersion"`
	MinorVersion int    `json:"minorVersion"`
	PatchVersion int    `json:"patchVersion"`
	Initialized  bool   `json:"initialized"`
	Unlocked     bool   `json:"unlocked"`
	App          string `json:"app"`
}

// BridgePublicKey is the success payload of a public key request.
type BridgePublicKey struct {
	PublicKey string `json:"publicKey"` // hex, uncompressed
	Address   string `json:"address,omitempty"`
}

// BridgeSignature is the success payload of a signing request. The encoding
// is vendor specific (fixed components or DER) and is normalized downstream.
type BridgeSignature struct {
	Signature string `json:"signature"` // hex
}

// BridgeFailure is the vendor failure envelope. It never crosses the session
// boundary: the family-B driver translates codes into taxonomy errors.
type BridgeFailure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (f *BridgeFailure) Error() string {
	return fmt.Sprintf("bridge failure %s: %s", f.Code, f.Message)
}

// Vendor failure codes the driver knows how to translate.
const (
	bridgeFailureCancelled      = "Failure_ActionCancelled"
	bridgeFailurePinInvalid     = "Failure_PinInvalid"
	bridgeFailurePinCancelled   = "Failure_PinCancelled"
	bridgeFailurePinExpected    = "Failure_PinExpected"
	bridgeFailureUnexpectedMsg  = "Failure_UnexpectedMessage"
	bridgeFailureInvalidSession = "Failure_InvalidSession"
	bridgeFailureFirmware       = "Failure_FirmwareError"
	bridgeFailureNotInitialized = "Failure_NotInitialized"
)

// Bridge is the vendor signing service contract. Initialize must succeed
// before any other call.
type Bridge interface {
	Initialize(ctx context.Context, manifest BridgeManifest) error
	Features(ctx context.Context) (*BridgeFeatures, error)
	PublicKey(ctx context.Context, path DerivationPath, confirm bool) (*BridgePublicKey, error)
	SignHash(ctx context.Context, path DerivationPath, digest []byte, personal bool) (*BridgeSignature, error)
	Release(ctx context.Context) error
}

// HTTPBridge talks to the real bridge service over loopback HTTP.
type HTTPBridge struct {
	base    string
	client  *http.Client
	session string
}

// NewHTTPBridge returns a bridge client for the given base URL (empty for
// DefaultBridgeURL). A nil client uses a dedicated one; per-call deadlines
// come from the caller's context.
func NewHTTPBridge(base string, client *http.Client) *HTTPBridge {
	if base == "" {
		base = DefaultBridgeURL
	}
	if client == nil {
		client = &http.Client{Timeout: 35 * time.Second}
	}
	return &HTTPBridge{
		base:    base,
		client:  client,
		session: uuid.NewString(),
	}
}

type bridgeEnvelope struct {
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload"`
	Error   *BridgeFailure  `json:"error"`
}

// call POSTs one JSON request and decodes the success payload into out.
// Vendor failures come back as *BridgeFailure; anything below that level is
// a communication error.
func (b *HTTPBridge) call(ctx context.Context, endpoint string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: encoding bridge request: %v", ErrCommunication, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.base+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", bridgeOrigin)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: bridge unreachable: %v", ErrCommunication, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading bridge reply: %v", ErrCommunication, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: bridge returned HTTP %d", ErrCommunication, resp.StatusCode)
	}
	var envelope bridgeEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("%w: malformed bridge reply: %v", ErrCommunication, err)
	}
	if !envelope.Success {
		if envelope.Error == nil {
			return fmt.Errorf("%w: bridge reported failure without a code", ErrCommunication)
		}
		return envelope.Error
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Payload, out); err != nil {
			return fmt.Errorf("%w: malformed bridge payload: %v", ErrCommunication, err)
		}
	}
	return nil
}

func (b *HTTPBridge) Initialize(ctx context.Context, manifest BridgeManifest) error {
	in := struct {
		BridgeManifest
		Session string `json:"session"`
	}{manifest, b.session}
	return b.call(ctx, "initialize", in, nil)
}

func (b *HTTPBridge) Features(ctx context.Context) (*BridgeFeatures, error) {
	in := struct {
		Session string `json:"session"`
	}{b.session}
	var features BridgeFeatures
	if err := b.call(ctx, "features", in, &features); err != nil {
		return nil, err
	}
	return &features, nil
}

func (b *HTTPBridge) PublicKey(ctx context.Context, path DerivationPath, confirm bool) (*BridgePublicKey, error) {
	in := struct {
		Session      string `json:"session"`
		Path         string `json:"path"`
		ShowOnDevice bool   `json:"showOnDevice"`
	}{b.session, path.String(), confirm}
	var key BridgePublicKey
	if err := b.call(ctx, "get-public-key", in, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

func (b *HTTPBridge) SignHash(ctx context.Context, path DerivationPath, digest []byte, personal bool) (*BridgeSignature, error) {
	in := struct {
		Session  string `json:"session"`
		Path     string `json:"path"`
		Digest   string `json:"digest"`
		Personal bool   `json:"personal"`
	}{b.session, path.String(), fmt.Sprintf("%x", digest), personal}
	var sig BridgeSignature
	if err := b.call(ctx, "sign-hash", in, &sig); err != nil {
		return nil, err
	}
	return &sig, nil
}

func (b *HTTPBridge) Release(ctx context.Context) error {
	in := struct {
		Session string `json:"session"`
	}{b.session}
	return b.call(ctx, "release", in, nil)
}
