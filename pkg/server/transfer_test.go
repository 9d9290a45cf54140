package server

import (
	"testing"

	"github.com/Wa4h1h/go-unbrick/pkg/types"
	"github.com/Wa4h1h/go-unbrick/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetBlockSizeRecomputesTotalBlocks(t *testing.T) {
	tests := []struct {
		name       string
		fwLen      int
		blockSize  int
		wantBlocks int
	}{
		{"exact multiple", 1024, 512, 2},
		{"with remainder", 1500, 512, 3},
		{"single short block", 100, 512, 1},
		{"minimum block size", 1500, 8, 188},
		{"block size larger than firmware", 1500, 2000, 1},
		{"boundary accepted", 8 * types.MaxBlocks, 8, types.MaxBlocks},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(make([]byte, tt.fwLen))

			s.setBlockSize(tt.blockSize)

			assert.Equal(t, tt.wantBlocks, s.totalBlocks)
			assert.NoError(t, s.checkLimits())
		})
	}
}

func TestCheckLimitsRejectsWrappingBlockNumbers(t *testing.T) {
	s, _ := newTestServer(make([]byte, 8*types.MaxBlocks+1))

	s.setBlockSize(8)

	require.ErrorIs(t, s.checkLimits(), utils.ErrTooManyBlocks)
}

func TestReadRequestWithoutOptionsSendsFirstBlock(t *testing.T) {
	fw := make([]byte, 1500)
	for i := range fw {
		fw[i] = byte(i)
	}

	s, conn := newTestServer(fw)

	require.NoError(t, s.handleTFTP(rrqPacket(t, nil), clientAddr))

	require.Len(t, conn.written, 1)
	assert.Equal(t, clientAddr, conn.addrs[0])

	payload := requireData(t, conn.written[0], 1)
	assert.Equal(t, fw[:512], payload)
}

func TestReadRequestWithBlkSizeRepliesOackNotData(t *testing.T) {
	s, conn := newTestServer(make([]byte, 1500))

	require.NoError(t, s.handleTFTP(rrqPacket(t, map[string]string{"blksize": "1024"}), clientAddr))

	require.Len(t, conn.written, 1)

	var oack types.Oack

	require.NoError(t, oack.UnmarshalBinary(conn.written[0]))
	assert.Equal(t, map[string]string{"blksize": "1024"}, oack.Options)
	assert.Equal(t, 1024, s.blockSize)
}

func TestReadRequestWithUnusableBlkSizeFallsBackToDefault(t *testing.T) {
	tests := []struct {
		name    string
		blksize string
	}{
		{"below minimum", "4"},
		{"above maximum", "70000"},
		{"not a number", "fast"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, conn := newTestServer(make([]byte, 1500))

			require.NoError(t, s.handleTFTP(rrqPacket(t, map[string]string{"blksize": tt.blksize}), clientAddr))

			require.Len(t, conn.written, 1)

			payload := requireData(t, conn.written[0], 1)
			assert.Len(t, payload, types.DefaultBlockSize)
			assert.Equal(t, types.DefaultBlockSize, s.blockSize)
		})
	}
}

func TestReadRequestIgnoresUnknownOptions(t *testing.T) {
	s, conn := newTestServer(make([]byte, 1500))

	opts := map[string]string{"timeout": "5", "tsize": "0"}
	require.NoError(t, s.handleTFTP(rrqPacket(t, opts), clientAddr))

	require.Len(t, conn.written, 1)
	requireData(t, conn.written[0], 1)
}

func TestAckDrivesNextBlock(t *testing.T) {
	fw := make([]byte, 1500)
	s, conn := newTestServer(fw)

	require.NoError(t, s.handleTFTP(ackPacket(t, 1), clientAddr))

	require.Len(t, conn.written, 1)
	requireData(t, conn.written[0], 2)
}

func TestSendBlockPastEndSendsNothing(t *testing.T) {
	s, conn := newTestServer(make([]byte, 1500))

	s.sendBlock(4, clientAddr)
	s.sendBlock(8, clientAddr)

	assert.Empty(t, conn.written)
}

func TestOversizeBlkSizeRequestIsFatal(t *testing.T) {
	s, conn := newTestServer(make([]byte, 8*types.MaxBlocks+1))

	err := s.handleTFTP(rrqPacket(t, map[string]string{"blksize": "8"}), clientAddr)

	require.ErrorIs(t, err, utils.ErrTooManyBlocks)
	assert.Empty(t, conn.written)
}

func TestMalformedPacketsAreDropped(t *testing.T) {
	s, conn := newTestServer(make([]byte, 1500))

	// wrong filename, truncated ack, unknown opcode, empty datagram
	packets := [][]byte{
		[]byte("\x00\x01other.bin\x00octet\x00"),
		{0, 4, 1},
		{0, 9, 0, 0},
		{},
	}

	for _, pkt := range packets {
		require.NoError(t, s.handleTFTP(pkt, clientAddr))
	}

	assert.Empty(t, conn.written)
}

func TestDefaultBlockSizeTransferScenario(t *testing.T) {
	fw := make([]byte, 1500)
	for i := range fw {
		fw[i] = byte(i * 7)
	}

	s, conn := newTestServer(fw)

	var progress [][2]int

	s.onProgress = func(block, total int) {
		progress = append(progress, [2]int{block, total})
	}

	require.NoError(t, s.handleTFTP(rrqPacket(t, nil), clientAddr))
	require.NoError(t, s.handleTFTP(ackPacket(t, 1), clientAddr))
	require.NoError(t, s.handleTFTP(ackPacket(t, 2), clientAddr))
	require.NoError(t, s.handleTFTP(ackPacket(t, 3), clientAddr))

	require.Len(t, conn.written, 3)
	assert.Equal(t, fw[:512], requireData(t, conn.written[0], 1))
	assert.Equal(t, fw[512:1024], requireData(t, conn.written[1], 2))
	assert.Equal(t, fw[1024:], requireData(t, conn.written[2], 3))

	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)
	assert.Equal(t, types.DefaultBlockSize, s.blockSize)
}

func TestNegotiatedSingleBlockTransferScenario(t *testing.T) {
	fw := make([]byte, 1500)
	for i := range fw {
		fw[i] = byte(255 - i)
	}

	s, conn := newTestServer(fw)

	require.NoError(t, s.handleTFTP(rrqPacket(t, map[string]string{"blksize": "2000"}), clientAddr))
	require.Len(t, conn.written, 1)
	assert.Equal(t, 1, s.totalBlocks)

	var oack types.Oack
	require.NoError(t, oack.UnmarshalBinary(conn.written[0]))

	// ack of block 0 answers the oack and starts the transfer
	require.NoError(t, s.handleTFTP(ackPacket(t, 0), clientAddr))
	require.Len(t, conn.written, 2)
	assert.Equal(t, fw, requireData(t, conn.written[1], 1))

	require.NoError(t, s.handleTFTP(ackPacket(t, 1), clientAddr))
	require.Len(t, conn.written, 2)

	// block size is back to the default for the next client
	assert.Equal(t, types.DefaultBlockSize, s.blockSize)
}
