// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/coreio/netcore"
	"github.com/coreio/netcore/netcoreconfig"
)

// echoSink implements netcore.Sink. It echoes every stream message back
// to its sender and logs every datagram it receives.
type echoSink struct {
	logger *slog.Logger
	rt     *netcore.Runtime

	mu       sync.Mutex
	listener netcore.Handle
}

func (s *echoSink) OnStreamAccepted(listenHandle, acceptHandle netcore.Handle) {
	s.logger.Info("stream accepted", "listener", listenHandle, "handle", acceptHandle)
}

func (s *echoSink) OnStreamReceived(handle netcore.Handle, payload []byte) {
	s.logger.Debug("stream received", "handle", handle, "bytes", len(payload))
	if err := s.rt.TCPSend(handle, payload); err != nil {
		s.logger.Error("echo failed", "handle", handle, "error", err)
	}
}

func (s *echoSink) OnStreamDisconnected(handle netcore.Handle) {
	s.logger.Info("stream disconnected", "handle", handle)
}

func (s *echoSink) OnStreamError(handle netcore.Handle, code int) {
	s.logger.Warn("stream error", "handle", handle, "code", code)
}

func (s *echoSink) OnDatagram(handle netcore.Handle, payload []byte, peerIP string, peerPort int) {
	s.logger.Info("datagram received", "handle", handle, "bytes", len(payload), "peer_ip", peerIP, "peer_port", peerPort)
}

func (s *echoSink) OnDatagramError(handle netcore.Handle, code int) {
	s.logger.Warn("datagram error", "handle", handle, "code", code)
}

func main() {
	configPath := flag.String("config", "", "path to netcore tunables file (optional)")
	tcpAddr := flag.String("tcp", "0.0.0.0:9000", "address to listen for TCP stream connections")
	udpAddr := flag.String("udp", "0.0.0.0:9001", "address to bind the UDP datagram endpoint")
	flag.Parse()

	var tunables *netcoreconfig.Tunables
	if *configPath != "" {
		loaded, err := netcoreconfig.LoadTunables(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
			os.Exit(1)
		}
		tunables = loaded
	} else {
		tunables = &netcoreconfig.Tunables{}
		if err := tunables.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "error applying defaults: %v\n", err)
			os.Exit(1)
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(tunables.LogLevel)}))

	sink := &echoSink{logger: logger}
	handle := netcore.NewSinkHandle(sink)

	rt, err := netcore.Startup(handle, netcore.WithLogger(logger), netcore.WithTunables(tunables))
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	sink.rt = rt
	defer rt.Shutdown()

	tcpIP, tcpPort, err := splitHostPort(*tcpAddr)
	if err != nil {
		logger.Error("invalid tcp address", "error", err)
		os.Exit(1)
	}
	listener, err := rt.TCPCreate(tcpIP, tcpPort)
	if err != nil {
		logger.Error("tcp create failed", "error", err)
		os.Exit(1)
	}
	if err := rt.TCPListen(listener); err != nil {
		logger.Error("tcp listen failed", "error", err)
		os.Exit(1)
	}
	sink.mu.Lock()
	sink.listener = listener
	sink.mu.Unlock()

	udpIP, udpPort, err := splitHostPort(*udpAddr)
	if err != nil {
		logger.Error("invalid udp address", "error", err)
		os.Exit(1)
	}
	if _, err := rt.UDPCreate(udpIP, udpPort, false); err != nil {
		logger.Error("udp create failed", "error", err)
		os.Exit(1)
	}

	logger.Info("netcore-echo listening", "tcp", *tcpAddr, "udp", *udpAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	logger.Info("shutting down")
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("malformed address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("malformed port in %q: %w", addr, err)
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return host, port, nil
}
