// Package wireframe implements the wire codecs for the two message
// shapes published by the sampler: ScanFrame (a compact, length-
// prefixed binary record with a CRC16 trailer) and TriggerEvent
// (plain JSON, since it is low-volume and consumed by both Go and
// non-Go tooling).
package wireframe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sigurn/crc16"
)

// ScanFrame is published once per channel per read batch.
type ScanFrame struct {
	// Timestamp is an RFC3339Nano string in the zone the sampler was
	// configured to format in.
	Timestamp string
	Values    []float64
}

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// EncodeScanFrame produces: u32 timestamp length, timestamp bytes,
// u32 value count, values as little-endian float64s, u16 CRC over
// everything preceding it. This preserves the original FlatBuffers
// schema's logical fields ({timestamp:string, values:[f64]}) without
// requiring a FlatBuffers code generator.
func EncodeScanFrame(f ScanFrame) []byte {
	var body bytes.Buffer
	tsBytes := []byte(f.Timestamp)
	binary.Write(&body, binary.LittleEndian, uint32(len(tsBytes)))
	body.Write(tsBytes)
	binary.Write(&body, binary.LittleEndian, uint32(len(f.Values)))
	for _, v := range f.Values {
		binary.Write(&body, binary.LittleEndian, v)
	}

	checksum := crc16.Checksum(body.Bytes(), crcTable)
	var out bytes.Buffer
	out.Write(body.Bytes())
	binary.Write(&out, binary.LittleEndian, checksum)
	return out.Bytes()
}

// DecodeScanFrame reverses EncodeScanFrame, verifying the CRC trailer.
func DecodeScanFrame(data []byte) (ScanFrame, error) {
	if len(data) < 2 {
		return ScanFrame{}, fmt.Errorf("wireframe: frame too short (%d bytes)", len(data))
	}
	body := data[:len(data)-2]
	wantChecksum := binary.LittleEndian.Uint16(data[len(data)-2:])
	gotChecksum := crc16.Checksum(body, crcTable)
	if wantChecksum != gotChecksum {
		return ScanFrame{}, fmt.Errorf("wireframe: checksum mismatch (want %04x, got %04x)", wantChecksum, gotChecksum)
	}

	r := bytes.NewReader(body)
	var tsLen uint32
	if err := binary.Read(r, binary.LittleEndian, &tsLen); err != nil {
		return ScanFrame{}, fmt.Errorf("wireframe: read timestamp length: %w", err)
	}
	tsBytes := make([]byte, tsLen)
	if _, err := io.ReadFull(r, tsBytes); err != nil {
		return ScanFrame{}, fmt.Errorf("wireframe: read timestamp: %w", err)
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return ScanFrame{}, fmt.Errorf("wireframe: read value count: %w", err)
	}
	values := make([]float64, count)
	for i := range values {
		if err := binary.Read(r, binary.LittleEndian, &values[i]); err != nil {
			return ScanFrame{}, fmt.Errorf("wireframe: read value %d: %w", i, err)
		}
	}

	return ScanFrame{Timestamp: string(tsBytes), Values: values}, nil
}
