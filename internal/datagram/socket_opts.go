// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package datagram

import (
	"context"
	"fmt"
	"net"
	"syscall"
)

// listenUDPWithOptions opens a UDP socket on laddr, setting SO_BROADCAST
// when requested and applying disableConnReset on every platform where
// it matters (a no-op on everything but Windows). The raw socket option
// work rides net.ListenConfig.Control, the same hook used elsewhere in
// this codebase to reach into a raw fd and set socket options net.Conn
// doesn't expose directly.
func listenUDPWithOptions(laddr *net.UDPAddr, broadcast bool) (*net.UDPConn, error) {
	var ctrlErr error
	lc := net.ListenConfig{
		Control: func(_, _ string, rawConn syscall.RawConn) error {
			return rawConn.Control(func(fd uintptr) {
				if broadcast {
					if err := syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1); err != nil {
						ctrlErr = fmt.Errorf("setsockopt SO_BROADCAST: %w", err)
						return
					}
				}
				if err := disableConnReset(fd); err != nil {
					ctrlErr = err
				}
			})
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp", laddr.String())
	if err != nil {
		return nil, err
	}
	if ctrlErr != nil {
		pc.Close()
		return nil, ctrlErr
	}
	udpConn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("unexpected packet conn type %T", pc)
	}
	return udpConn, nil
}
