package server

import (
	"net"
	"testing"
	"time"

	"github.com/Wa4h1h/go-unbrick/pkg/firmware"
	"github.com/Wa4h1h/go-unbrick/pkg/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// capturingConn records every WriteTo so tests can assert on outbound
// packets without sockets.
type capturingConn struct {
	written [][]byte
	addrs   []net.Addr
}

func (c *capturingConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)

	c.written = append(c.written, buf)
	c.addrs = append(c.addrs, addr)

	return len(p), nil
}

func (c *capturingConn) ReadFrom(p []byte) (int, net.Addr, error) { return 0, nil, net.ErrClosed }
func (c *capturingConn) Close() error                             { return nil }
func (c *capturingConn) LocalAddr() net.Addr                      { return &net.UDPAddr{} }
func (c *capturingConn) SetDeadline(t time.Time) error            { return nil }
func (c *capturingConn) SetReadDeadline(t time.Time) error        { return nil }
func (c *capturingConn) SetWriteDeadline(t time.Time) error       { return nil }

var clientAddr = &net.UDPAddr{IP: net.IPv4(192, 0, 0, 64), Port: 3956}

func newTestServer(fw []byte) (*Server, *capturingConn) {
	conn := new(capturingConn)

	s := NewServer(zap.NewNop().Sugar(), "127.0.0.1",
		&firmware.Image{Name: "digicap.dav", Bytes: fw}, nil)
	s.tftpConn = conn
	s.handshakeConn = conn

	return s, conn
}

func rrqPacket(t *testing.T, opts map[string]string) []byte {
	t.Helper()

	req := &types.Request{
		Opcode:   types.OpCodeRRQ,
		Filename: "digicap.dav",
		Mode:     types.ModeOctet,
		Options:  opts,
	}

	b, err := req.MarshalBinary()
	require.NoError(t, err)

	return b
}

func ackPacket(t *testing.T, blockNum uint16) []byte {
	t.Helper()

	ack := &types.Ack{Opcode: types.OpCodeACK, BlockNum: blockNum}

	b, err := ack.MarshalBinary()
	require.NoError(t, err)

	return b
}

func requireData(t *testing.T, pkt []byte, blockNum uint16) []byte {
	t.Helper()

	var data types.Data

	require.NoError(t, data.UnmarshalBinary(pkt))
	require.Equal(t, blockNum, data.BlockNum)

	return data.Payload
}
