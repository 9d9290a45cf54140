package server

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"syscall"

	"github.com/Wa4h1h/go-unbrick/pkg/firmware"
	"github.com/Wa4h1h/go-unbrick/pkg/types"
	"github.com/Wa4h1h/go-unbrick/pkg/utils"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// HandshakePort is where the device probes for a recovery server.
	HandshakePort = 9978
	// TFTPPort is fixed by the device firmware, only the bind address is
	// configurable.
	TFTPPort = 69

	maxDatagramSize = 65536
)

// ProgressFunc is notified after each DATA block goes out.
type ProgressFunc func(block, total int)

type source int

const (
	srcHandshake source = iota
	srcTFTP
)

type datagram struct {
	addr    net.Addr
	payload []byte
	src     source
}

// Server answers the device handshake and serves one firmware image over a
// restricted TFTP subset. It assumes a single recovering device: the
// negotiated block size is shared state, not per-client, and DATA is always
// addressed to whichever client sent the last request. Two devices
// recovering at once would corrupt each other's transfer.
type Server struct {
	logger        *zap.SugaredLogger
	image         *firmware.Image
	onProgress    ProgressFunc
	handshakeConn net.PacketConn
	tftpConn      net.PacketConn
	bindIP        string
	rrqPrefix     []byte
	blockSize     int
	totalBlocks   int
}

func NewServer(l *zap.SugaredLogger, bindIP string, img *firmware.Image, onProgress ProgressFunc) *Server {
	s := &Server{
		logger:     l,
		bindIP:     bindIP,
		image:      img,
		onProgress: onProgress,
		rrqPrefix:  rrqPrefix(img.Name),
	}

	s.setBlockSize(types.DefaultBlockSize)

	return s
}

// rrqPrefix builds the exact byte pattern every valid read request for the
// served file starts with: opcode, filename, null, "octet", null.
func rrqPrefix(filename string) []byte {
	b := new(bytes.Buffer)
	b.Grow(2 + len(filename) + 1 + len(types.ModeOctet) + 1)

	opcode := uint16(types.OpCodeRRQ)
	if err := binary.Write(b, binary.BigEndian, opcode); err != nil {
		panic(err)
	}

	b.WriteString(filename)
	b.WriteByte(0)
	b.WriteString(types.ModeOctet)
	b.WriteByte(0)

	return b.Bytes()
}

// ListenAndServe binds both sockets and runs the event loop until Close is
// called or a fatal engine error occurs. All protocol state is owned by this
// goroutine; the per-socket readers only forward datagrams.
func (s *Server) ListenAndServe() error {
	hs, err := bind(s.bindIP, HandshakePort)
	if err != nil {
		return err
	}

	tf, err := bind(s.bindIP, TFTPPort)
	if err != nil {
		if errClose := hs.Close(); errClose != nil {
			s.logger.Errorf("error while closing handshake socket: %s", errClose.Error())
		}

		return err
	}

	s.handshakeConn = hs
	s.tftpConn = tf

	s.logger.Infof("handshake listener on %s", hs.LocalAddr())
	s.logger.Infof("tftp listener on %s", tf.LocalAddr())
	s.logger.Infof("serving %s: %d bytes (%d blocks)", s.image.Name, len(s.image.Bytes), s.totalBlocks)

	packets := make(chan datagram, 8)

	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()
		s.readLoop(hs, srcHandshake, packets)
	}()

	go func() {
		defer wg.Done()
		s.readLoop(tf, srcTFTP, packets)
	}()

	go func() {
		wg.Wait()
		close(packets)
	}()

	for dg := range packets {
		switch dg.src {
		case srcHandshake:
			s.handleHandshake(dg.payload, dg.addr)
		case srcTFTP:
			if err := s.handleTFTP(dg.payload, dg.addr); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *Server) readLoop(conn net.PacketConn, src source, out chan<- datagram) {
	buf := make([]byte, maxDatagramSize)

	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Errorf("error while reading from %s: %s", conn.LocalAddr(), err.Error())
			}

			return
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		out <- datagram{payload: payload, addr: addr, src: src}
	}
}

// Close releases both sockets, which unblocks the readers and lets the event
// loop drain and return.
func (s *Server) Close() error {
	var err error

	if s.handshakeConn != nil {
		if errClose := s.handshakeConn.Close(); errClose != nil {
			err = multierr.Append(err, fmt.Errorf("error while closing handshake socket: %w", errClose))
		}
	}

	if s.tftpConn != nil {
		if errClose := s.tftpConn.Close(); errClose != nil {
			err = multierr.Append(err, fmt.Errorf("error while closing tftp socket: %w", errClose))
		}
	}

	return err
}

func bind(ip string, port int) (net.PacketConn, error) {
	conn, err := net.ListenPacket("udp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		switch {
		case errors.Is(err, syscall.EADDRNOTAVAIL):
			return nil, fmt.Errorf("%w: %s is not available on this machine (try: ip addr add %s/32 dev <interface>)",
				utils.ErrStartingServer, ip, ip)
		case errors.Is(err, syscall.EADDRINUSE):
			return nil, fmt.Errorf("%w: port %d on %s is already in use", utils.ErrStartingServer, port, ip)
		case errors.Is(err, syscall.EACCES):
			return nil, fmt.Errorf("%w: permission denied binding port %d, run as root", utils.ErrStartingServer, port)
		default:
			return nil, fmt.Errorf("%w: %s", utils.ErrStartingServer, err.Error())
		}
	}

	return conn, nil
}
