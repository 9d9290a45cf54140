package server

import (
	"bytes"
	"encoding/hex"
	"net"
)

// handshakeToken is the 20-byte magic the device sends to probe for a
// recovery server: "SWKH" zero padded.
var handshakeToken = append([]byte("SWKH"), make([]byte, 16)...)

// handleHandshake echoes the magic token back verbatim so the device knows a
// recovery server is present. Anything else is logged and dropped.
func (s *Server) handleHandshake(pkt []byte, addr net.Addr) {
	if !bytes.Equal(pkt, handshakeToken) {
		s.logger.Infof("bad handshake from %s: %s", addr, hex.EncodeToString(pkt))

		return
	}

	if _, err := s.handshakeConn.WriteTo(pkt, addr); err != nil {
		s.logger.Errorf("error while echoing handshake to %s: %s", addr, err.Error())

		return
	}

	s.logger.Infof("handshake ok from %s", addr)
}
