package server

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"

	"github.com/Wa4h1h/go-unbrick/pkg/types"
	"github.com/Wa4h1h/go-unbrick/pkg/utils"
)

// setBlockSize adopts a new block size and recomputes the total block count.
// The two values are never out of sync.
func (s *Server) setBlockSize(size int) {
	s.blockSize = size
	s.totalBlocks = (len(s.image.Bytes) + size - 1) / size

	s.logger.Infof("block size set to %d bytes, %d blocks", s.blockSize, s.totalBlocks)
}

// checkLimits rejects firmware/block-size combinations whose block numbers
// would wrap past 16 bits. This cannot be recovered without re-negotiation,
// so it is treated as a setup defect and ends the event loop.
func (s *Server) checkLimits() error {
	if s.totalBlocks > types.MaxBlocks {
		return fmt.Errorf("%w: %d bytes need %d blocks of %d",
			utils.ErrTooManyBlocks, len(s.image.Bytes), s.totalBlocks, s.blockSize)
	}

	return nil
}

// handleTFTP dispatches one datagram from the TFTP socket. Malformed packets
// are logged and dropped, never answered with a TFTP ERROR.
func (s *Server) handleTFTP(pkt []byte, addr net.Addr) error {
	var ack types.Ack

	switch {
	case bytes.HasPrefix(pkt, s.rrqPrefix):
		return s.handleReadRequest(pkt, addr)
	case ack.UnmarshalBinary(pkt) == nil:
		s.sendBlock(int(ack.BlockNum)+1, addr)
	default:
		s.logger.Infof("unexpected packet from %s: %s...", addr, hexPrefix(pkt, 8))
	}

	return nil
}

func (s *Server) handleReadRequest(pkt []byte, addr net.Addr) error {
	opts := types.ParseOptions(pkt[len(s.rrqPrefix):])
	if len(opts) > 0 {
		s.logger.Infof("client options: %v", opts)
	}

	if val, ok := opts[types.OptionBlkSize]; ok {
		size, err := strconv.Atoi(val)
		if err == nil && size >= types.MinBlkSize && size <= types.MaxBlkSize {
			s.setBlockSize(size)

			if err := s.checkLimits(); err != nil {
				return err
			}

			s.sendOack(addr)

			// DATA starts once the client acks block 0.
			return nil
		}

		s.logger.Debugf("ignoring unusable blksize %q", val)
	}

	if err := s.checkLimits(); err != nil {
		return err
	}

	s.logger.Infof("starting transfer to %s", addr)
	s.sendBlock(1, addr)

	return nil
}

func (s *Server) sendOack(addr net.Addr) {
	oack := &types.Oack{
		Opcode:  types.OpCodeOACK,
		Options: map[string]string{types.OptionBlkSize: strconv.Itoa(s.blockSize)},
	}

	b, err := oack.MarshalBinary()
	if err != nil {
		s.logger.Errorf("error while marshalling oack: %s", err.Error())

		return
	}

	if _, err := s.tftpConn.WriteTo(b, addr); err != nil {
		s.logger.Errorf("error while writing oack: %s", err.Error())
	}
}

// sendBlock emits DATA block n (1-indexed) to addr. When n points past the
// firmware the transfer already completed on the previous block: log it,
// reset the block size for the next client and send nothing, so late or
// duplicate final acks are harmless.
func (s *Server) sendBlock(n int, addr net.Addr) {
	start := (n - 1) * s.blockSize
	if start >= len(s.image.Bytes) {
		s.logger.Infof("transfer complete: %d blocks sent", s.totalBlocks)

		if s.blockSize != types.DefaultBlockSize {
			s.setBlockSize(types.DefaultBlockSize)
		}

		return
	}

	end := start + s.blockSize
	if end > len(s.image.Bytes) {
		end = len(s.image.Bytes)
	}

	data := &types.Data{
		Opcode:   types.OpCodeDATA,
		BlockNum: uint16(n),
		Payload:  s.image.Bytes[start:end],
	}

	b, err := data.MarshalBinary()
	if err != nil {
		s.logger.Errorf("error while marshalling data packet: %s", err.Error())

		return
	}

	if _, err := s.tftpConn.WriteTo(b, addr); err != nil {
		s.logger.Errorf("error while writing data packet: %s", err.Error())

		return
	}

	s.logger.Debugf("sent block#=%d, sent #bytes=%d", n, end-start)

	if s.onProgress != nil {
		s.onProgress(n, s.totalBlocks)
	}
}

func hexPrefix(pkt []byte, n int) string {
	if len(pkt) < n {
		n = len(pkt)
	}

	return hex.EncodeToString(pkt[:n])
}
