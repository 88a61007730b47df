package sim

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"
	"tinygo.org/x/drivers"

	"hailfire/protocol"
	"hailfire/tinycompress"
)

// BridgeServer is a USB bridge adapter in software: it answers bridge
// blocks arriving on a stream by running the transactions on a bus
type BridgeServer struct {
	port io.ReadWriter
	dev  *protocol.BridgeDevice
	log  zerolog.Logger
}

// NewBridgeServer serves bus on port under the given identity
func NewBridgeServer(port io.ReadWriter, bus drivers.SPI, identity string, log zerolog.Logger) *BridgeServer {
	s := &BridgeServer{port: port, log: log}
	s.dev = protocol.NewBridgeDevice(identity, bus.Tx)
	s.dev.OnReset = func() { s.log.Debug().Msg("bridge sequence reset") }
	return s
}

// SetDictionary makes the server carry a register dictionary, as a
// firmware adapter built with the key map does
func (s *BridgeServer) SetDictionary(text string) {
	s.dev.Dictionary = tinycompress.Compress(nil, []byte(text))
}

// Serve runs until the port fails or ctx is done. Cancellation only takes
// effect once the pending read returns, so callers close the port to stop.
func (s *BridgeServer) Serve(ctx context.Context) error {
	in := protocol.NewFifoBuffer(4 * protocol.BlockLengthMax)
	buf := make([]byte, 64)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.port.Read(buf[:min(len(buf), in.Free())])
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		in.Write(buf[:n])
		if reply := s.dev.Receive(in); len(reply) > 0 {
			if _, err := s.port.Write(reply); err != nil {
				return err
			}
		}
		if in.Free() == 0 {
			// No complete block fits: resynchronize
			s.log.Warn().Int("dropped", in.Available()).Msg("bridge input overflow")
			in.Reset()
		}
	}
}
