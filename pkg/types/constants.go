package types

type OpCode uint16

const (
	OpCodeRRQ  OpCode = 1
	OpCodeDATA OpCode = 3
	OpCodeACK  OpCode = 4
	OpCodeOACK OpCode = 6
)

const (
	// MaxBlocks is the highest usable TFTP block number. Block numbers are
	// 16-bit and wrap after 65535; this server refuses transfers that would
	// need to wrap.
	MaxBlocks = 65535

	DefaultBlockSize = 512

	// RFC 2348 bounds for the blksize option.
	MinBlkSize = 8
	MaxBlkSize = 65464
)

const (
	OptionBlkSize = "blksize"
	ModeOctet     = "octet"
)
