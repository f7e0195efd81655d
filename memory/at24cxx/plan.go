package at24cxx

import (
	"strings"

	"github.com/mklimuk/eeprom"
)

const (
	// MaxWritePayload is the data room left in a bus transaction after the two address bytes.
	MaxWritePayload = eeprom.BufferSize - 2
	// MaxReadChunk is the largest single read request.
	MaxReadChunk = eeprom.BufferSize

	DefaultPageSize = 32
)

// Chunk is one bus transaction of a buffered transfer. Offset indexes the
// caller's buffer.
type Chunk struct {
	Address uint16
	Offset  int
	Size    int
}

// PlanWrite splits n bytes starting at address into transactions that never
// cross a page boundary and never carry more than MaxWritePayload bytes.
func PlanWrite(address uint16, n int, pageSize int) []Chunk {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	var chunks []Chunk
	addr := int(address)
	for off := 0; off < n; {
		size := min(n-off, MaxWritePayload, pageSize-addr%pageSize)
		chunks = append(chunks, Chunk{Address: uint16(addr), Offset: off, Size: size})
		off += size
		addr += size
	}
	return chunks
}

// PlanRead splits n bytes starting at address into requests of at most
// MaxReadChunk bytes. Reads are not page bound.
func PlanRead(address uint16, n int) []Chunk {
	var chunks []Chunk
	addr := int(address)
	for off := 0; off < n; {
		size := min(n-off, MaxReadChunk)
		chunks = append(chunks, Chunk{Address: uint16(addr), Offset: off, Size: size})
		off += size
		addr += size
	}
	return chunks
}

// Chip describes a member of the 24-series family.
type Chip struct {
	Name     string
	Capacity int
	PageSize int
}

var (
	AT24C32  = Chip{Name: "AT24C32", Capacity: 4096, PageSize: 32}
	AT24C64  = Chip{Name: "AT24C64", Capacity: 8192, PageSize: 32}
	AT24C128 = Chip{Name: "AT24C128", Capacity: 16384, PageSize: 64}
	AT24C256 = Chip{Name: "AT24C256", Capacity: 32768, PageSize: 64}
	AT24C512 = Chip{Name: "AT24C512", Capacity: 65536, PageSize: 128}
)

var chips = []Chip{AT24C32, AT24C64, AT24C128, AT24C256, AT24C512}

// LookupChip finds a chip by name, ignoring case.
func LookupChip(name string) (Chip, bool) {
	for _, c := range chips {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Chip{}, false
}
