package utils

import "errors"

var (
	ErrStartingServer    = errors.New("error: starting the udp server")
	ErrWrongOpCode       = errors.New("error: invalid operation code")
	ErrPacketTooShort    = errors.New("error: packet too short")
	ErrDataPayloadTooBig = errors.New("error: payload exceeds the maximum block size")
	ErrPacketMarshall    = errors.New("error: can not marshall packet")
	ErrTooManyBlocks     = errors.New("error: firmware too large for the negotiated block size")
	ErrFirmwareMissing   = errors.New("error: firmware file not found")
	ErrFirmwareEmpty     = errors.New("error: firmware file is empty")
)
