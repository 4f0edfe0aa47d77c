// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

//go:build windows

package datagram

import (
	"syscall"
	"unsafe"
)

// sioUDPConnReset is SIO_UDP_CONNRESET, undocumented in the syscall
// package but stable across Windows versions.
const sioUDPConnReset = syscall.IOC_IN | syscall.IOC_VENDOR | 12

// disableConnReset turns off the Windows-specific behavior where a UDP
// socket that receives an ICMP port-unreachable for a prior send later
// fails an unrelated ReadFrom with WSAECONNRESET. BSD sockets never do
// this, so it's a no-op everywhere else.
func disableConnReset(fd uintptr) error {
	var bytesReturned uint32
	flag := uint32(0)
	return syscall.WSAIoctl(
		syscall.Handle(fd),
		sioUDPConnReset,
		(*byte)(unsafe.Pointer(&flag)),
		4,
		nil,
		0,
		&bytesReturned,
		nil,
		0,
	)
}
