package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/Wa4h1h/go-unbrick/pkg/utils"
)

// Request is a TFTP read request. Options holds the RFC 2348 option pairs
// that follow the transfer mode, keys lowercased. Keys that decode to empty
// strings are dropped; invalid UTF-8 in a pair is stripped rather than
// rejected, so one broken option cannot poison the request.
type Request struct {
	Filename string
	Mode     string
	Options  map[string]string
	Opcode   OpCode
}

func (r *Request) MarshalBinary() ([]byte, error) {
	b := new(bytes.Buffer)
	b.Grow(2 + len(r.Filename) + 1 + len(r.Mode) + 1)

	if err := binary.Write(b, binary.BigEndian, &r.Opcode); err != nil {
		return nil, fmt.Errorf("error while writing opcode: %w", err)
	}

	if _, err := b.WriteString(r.Filename); err != nil {
		return nil, fmt.Errorf("error while writing filename: %w", err)
	}

	if err := b.WriteByte(0); err != nil {
		return nil, fmt.Errorf("error while writing null byte after filename: %w", err)
	}

	if _, err := b.WriteString(r.Mode); err != nil {
		return nil, fmt.Errorf("error while writing mode: %w", err)
	}

	if err := b.WriteByte(0); err != nil {
		return nil, fmt.Errorf("error while writing null byte after mode: %w", err)
	}

	for k, v := range r.Options {
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

func (r *Request) UnmarshalBinary(data []byte) error {
	if len(data) < 2 {
		return utils.ErrPacketTooShort
	}

	rd := bytes.NewBuffer(data)

	if err := binary.Read(rd, binary.BigEndian, &r.Opcode); err != nil {
		return fmt.Errorf("error while decoding opcode: %w", err)
	}

	if r.Opcode != OpCodeRRQ {
		return utils.ErrWrongOpCode
	}

	filename, err := rd.ReadString(0)
	if err != nil {
		return fmt.Errorf("error while decoding filename: %w", err)
	}

	r.Filename = strings.TrimRight(filename, "\x00")

	mode, err := rd.ReadString(0)
	if err != nil {
		return fmt.Errorf("error while decoding mode: %w", err)
	}

	r.Mode = strings.TrimRight(mode, "\x00")
	r.Options = ParseOptions(rd.Bytes())

	return nil
}

// ParseOptions splits the tail of a read request into alternating
// name/value pairs. A trailing unterminated name is ignored.
func ParseOptions(tail []byte) map[string]string {
	parts := bytes.Split(tail, []byte{0})
	opts := make(map[string]string)

	for i := 0; i+1 < len(parts); i += 2 {
		key := strings.ToValidUTF8(string(parts[i]), "")
		val := strings.ToValidUTF8(string(parts[i+1]), "")

		if key != "" {
			opts[strings.ToLower(key)] = val
		}
	}

	return opts
}
