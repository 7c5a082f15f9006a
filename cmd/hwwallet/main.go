// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

// Command hwwallet is a small operator tool over the hardware wallet
// protocol layer: enumerate devices, fetch addresses and sign payloads.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	hwwallet "github.com/luxfi/hwwallet"
)

func main() {
	app := &cli.App{
		Name:  "hwwallet",
		Usage: "interact with hardware signing devices",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "family",
				Usage: "device family (ledger or trezor)",
				Value: string(hwwallet.FamilyLedger),
			},
			&cli.StringFlag{
				Name:  "bridge-url",
				Usage: "vendor bridge endpoint for family trezor",
				Value: hwwallet.DefaultBridgeURL,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "per-exchange timeout, confirmation wait included",
				Value: 30 * time.Second,
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "devices",
				Usage:  "list attached USB wallet devices",
				Action: runDevices,
			},
			{
				Name:  "address",
				Usage: "derive the address at a derivation path",
				Flags: []cli.Flag{
					pathFlag(),
					&cli.BoolFlag{
						Name:  "confirm",
						Usage: "display the address on the device and wait for approval",
					},
				},
				Action: runAddress,
			},
			{
				Name:  "sign-tx",
				Usage: "sign a JSON transaction payload",
				Flags: []cli.Flag{
					pathFlag(),
					&cli.StringFlag{
						Name:     "payload",
						Usage:    "transaction payload as a JSON object",
						Required: true,
					},
				},
				Action: runSignTx,
			},
			{
				Name:  "sign-msg",
				Usage: "sign a personal message",
				Flags: []cli.Flag{
					pathFlag(),
					&cli.StringFlag{
						Name:     "msg",
						Usage:    "message to sign",
						Required: true,
					},
				},
				Action: runSignMsg,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		fmt.Fprintln(os.Stderr, hwwallet.Hint(err))
		os.Exit(1)
	}
}

func pathFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "path",
		Usage: "derivation path",
		Value: hwwallet.DefaultBaseDerivationPath.String(),
	}
}

func runDevices(c *cli.Context) error {
	admin := hwwallet.NewDeviceAdmin()
	devices, err := admin.ListDevices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("no devices found")
		return nil
	}
	for i, d := range devices {
		fmt.Printf("%d: %s\n", i, d)
	}
	return nil
}

// connect builds a manager from the global flags and opens the session.
func connect(c *cli.Context) (*hwwallet.Manager, error) {
	family := hwwallet.Family(c.String("family"))
	opts := []hwwallet.Option{
		hwwallet.WithExchangeTimeout(c.Duration("timeout")),
	}
	if family == hwwallet.FamilyTrezor {
		opts = append(opts, hwwallet.WithBridge(hwwallet.NewHTTPBridge(c.String("bridge-url"), nil)))
	}
	manager := hwwallet.NewManager(opts...)
	if err := manager.Connect(context.Background(), family); err != nil {
		return nil, err
	}
	return manager, nil
}

func runAddress(c *cli.Context) error {
	path, err := hwwallet.ParseDerivationPath(c.String("path"))
	if err != nil {
		return err
	}
	manager, err := connect(c)
	if err != nil {
		return err
	}
	defer manager.Disconnect()

	addr, err := manager.Address(context.Background(), path, c.Bool("confirm"))
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", path, addr.Hex())
	return nil
}

func runSignTx(c *cli.Context) error {
	path, err := hwwallet.ParseDerivationPath(c.String("path"))
	if err != nil {
		return err
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(c.String("payload")), &payload); err != nil {
		return fmt.Errorf("payload is not a JSON object: %w", err)
	}
	manager, err := connect(c)
	if err != nil {
		return err
	}
	defer manager.Disconnect()

	fmt.Println("confirm the transaction on your device...")
	sig, err := manager.SignTransaction(context.Background(), path, payload)
	if err != nil {
		return err
	}
	fmt.Println(sig.Hex())
	return nil
}

func runSignMsg(c *cli.Context) error {
	path, err := hwwallet.ParseDerivationPath(c.String("path"))
	if err != nil {
		return err
	}
	manager, err := connect(c)
	if err != nil {
		return err
	}
	defer manager.Disconnect()

	fmt.Println("confirm the message on your device...")
	sig, err := manager.SignMessage(context.Background(), path, []byte(c.String("msg")))
	if err != nil {
		return err
	}
	fmt.Println(sig.Hex())
	return nil
}
