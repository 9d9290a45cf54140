package types

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Wa4h1h/go-unbrick/pkg/utils"
)

// Oack acknowledges the options the server accepted (RFC 2348). The client
// answers an OACK with an ACK of block 0 before any DATA flows.
type Oack struct {
	Options map[string]string
	Opcode  OpCode
}

func (o *Oack) MarshalBinary() ([]byte, error) {
	b := new(bytes.Buffer)

	if err := binary.Write(b, binary.BigEndian, &o.Opcode); err != nil {
		return nil, fmt.Errorf("error while writing opcode: %w", err)
	}

	for k, v := range o.Options {
		if _, err := b.WriteString(k); err != nil {
			return nil, fmt.Errorf("error while writing option name: %w", err)
		}

		if err := b.WriteByte(0); err != nil {
			return nil, fmt.Errorf("error while writing null byte after option name: %w", err)
		}

		if _, err := b.WriteString(v); err != nil {
			return nil, fmt.Errorf("error while writing option value: %w", err)
		}

		if err := b.WriteByte(0); err != nil {
			return nil, fmt.Errorf("error while writing null byte after option value: %w", err)
		}
	}

	return b.Bytes(), nil
}

func (o *Oack) UnmarshalBinary(data []byte) error {
	if len(data) < 2 {
		return utils.ErrPacketTooShort
	}

	b := bytes.NewBuffer(data)

	if err := binary.Read(b, binary.BigEndian, &o.Opcode); err != nil {
		return fmt.Errorf("error while reading opcode: %w", err)
	}

	if o.Opcode != OpCodeOACK {
		return utils.ErrWrongOpCode
	}

	o.Options = ParseOptions(b.Bytes())

	return nil
}
