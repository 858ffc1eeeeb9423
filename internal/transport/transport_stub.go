//go:build !linux

// File: internal/transport/transport_stub.go
// Package transport - stub for platforms without a socket implementation.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import "errors"

var errUnsupported = errors.New("transport: unsupported platform (linux only)")

func Listen(string, int) (int, int, error) { return -1, 0, errUnsupported }

func Accept(int) (int, string, bool, error) { return -1, "", false, errUnsupported }

func Read(int, []byte) (int, bool, bool, error) { return 0, false, false, errUnsupported }

func Write(int, []byte) (int, bool, error) { return 0, false, errUnsupported }

func Close(int) {}

func Pipe() (int, int, error) { return -1, -1, errUnsupported }

func Wake(int) {}

func Drain(int) {}
