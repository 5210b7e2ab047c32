package slot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
)

// Candy machine config account layout
const (
	// ConfigArrayStart is the offset of the config line vector length prefix
	ConfigArrayStart = 8 + // discriminator
		32 + // authority
		4 + 6 + // uuid
		4 + 10 + // symbol
		2 + // seller fee basis points
		1 + 4 + 5*34 + // creators
		8 + // max supply
		1 + // is mutable
		1 + // retain authority
		4 // max number of lines

	// ConfigLineSize is the stride between two config lines
	ConfigLineSize = 4 + MaxNameLength + 4 + MaxURILength

	// MaxNameLength is the byte width of the name field
	MaxNameLength = 32

	// MaxURILength is the byte width of the URI field
	MaxURILength = 200

	nameStart = 4
	nameEnd   = nameStart + MaxNameLength
	uriStart  = nameEnd + 4
	uriEnd    = uriStart + MaxURILength
)

var (
	// ErrSlotOutOfRange is returned for slot indexes outside the collection
	ErrSlotOutOfRange = errors.New("slot index out of range")

	// ErrMalformedConfig is returned when the config account is too short for its lines
	ErrMalformedConfig = errors.New("malformed config account")
)

var urlScheme = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*://`)

// Line is one decoded config line
type Line struct {
	Slot uint32
	Name string
	URI  string
}

// Used reports whether the line already points at uploaded metadata
func (l Line) Used() bool {
	return urlScheme.MatchString(l.URI)
}

// LineCount reads the number of config lines stored in the account
func LineCount(data []byte) (uint32, error) {
	if len(data) < ConfigArrayStart+4 {
		return 0, fmt.Errorf("%w: %d bytes", ErrMalformedConfig, len(data))
	}
	return binary.LittleEndian.Uint32(data[ConfigArrayStart : ConfigArrayStart+4]), nil
}

// DecodeLine decodes the line of a 1-based slot index
func DecodeLine(data []byte, slot uint32) (Line, error) {
	count, err := LineCount(data)
	if err != nil {
		return Line{}, err
	}
	if slot == 0 || slot > count {
		return Line{}, fmt.Errorf("%w: slot %d, collection has %d", ErrSlotOutOfRange, slot, count)
	}

	start := lineOffset(slot)
	end := start + ConfigLineSize
	if end > len(data) {
		return Line{}, fmt.Errorf("%w: line %d ends at %d, account is %d bytes", ErrMalformedConfig, slot, end, len(data))
	}
	line := data[start:end]

	return Line{
		Slot: slot,
		Name: trimPadding(line[nameStart:nameEnd]),
		URI:  trimPadding(line[uriStart:uriEnd]),
	}, nil
}

// EncodeLine writes name and uri into the line of a slot, for tests and tooling
func EncodeLine(data []byte, slot uint32, name, uri string) error {
	if len(name) > MaxNameLength || len(uri) > MaxURILength {
		return fmt.Errorf("%w: name or uri too long", ErrMalformedConfig)
	}
	start := lineOffset(slot)
	if slot == 0 || start+ConfigLineSize > len(data) {
		return fmt.Errorf("%w: slot %d", ErrSlotOutOfRange, slot)
	}
	line := data[start : start+ConfigLineSize]

	binary.LittleEndian.PutUint32(line[0:nameStart], uint32(len(name)))
	copy(line[nameStart:nameEnd], name)
	binary.LittleEndian.PutUint32(line[nameEnd:uriStart], uint32(len(uri)))
	copy(line[uriStart:uriEnd], uri)

	return nil
}

// NewConfigData allocates an empty config account holding count lines
func NewConfigData(count uint32) []byte {
	data := make([]byte, ConfigArrayStart+4+int(count)*ConfigLineSize)
	binary.LittleEndian.PutUint32(data[ConfigArrayStart:ConfigArrayStart+4], count)
	return data
}

func lineOffset(slot uint32) int {
	return ConfigArrayStart + 4 + ConfigLineSize*int(slot-1)
}

func trimPadding(b []byte) string {
	return string(bytes.Trim(b, "\x00"))
}
