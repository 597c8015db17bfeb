//go:build !(rp2040 || rp2350)

package hal

import (
	"context"
	"io"
	"net"

	"smokenode/services/ncp"
	"smokenode/types"
)

// Default returns a simulated board on host builds. Its first wake is a cold
// boot and its uplink reaches an in-process co-processor emulator, so the
// firmware entry point runs unchanged on a workstation.
func Default(smokePin int) (*Board, error) {
	sb := NewSimBoard(smokePin, types.WakeColdBoot)
	sb.Dial = DialEmulator(nil)
	return sb.Board, nil
}

// DialEmulator returns a dialer whose links end in a fresh ncp.Emulator.
// setup, when non-nil, adjusts each emulator before it serves.
func DialEmulator(setup func(*ncp.Emulator)) UplinkDialer {
	return func(ctx context.Context, _ types.UARTConfig) (io.ReadWriteCloser, error) {
		host, dev := net.Pipe()
		emu := ncp.NewEmulator(dev)
		if setup != nil {
			setup(emu)
		}
		go func() {
			_ = emu.Serve(ctx)
			_ = dev.Close()
		}()
		return host, nil
	}
}
