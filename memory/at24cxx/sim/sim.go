// Package sim models a 24-series EEPROM behind an eeprom.I2CBus: a 16-bit
// address pointer, in-page write wrap-around, a write cycle during which the
// part does not acknowledge, and read roll-over at the end of the array.
// It records every transaction and can be told to stop responding.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mklimuk/eeprom"
)

const DefaultAddress = 0x50

type TxKind int

const (
	TxProbe TxKind = iota
	TxAddress
	TxWrite
	TxRead
)

func (k TxKind) String() string {
	switch k {
	case TxProbe:
		return "probe"
	case TxAddress:
		return "address"
	case TxWrite:
		return "write"
	case TxRead:
		return "read"
	default:
		return fmt.Sprintf("TxKind(%d)", int(k))
	}
}

// Transaction is one bus transfer as seen by the part.
type Transaction struct {
	Kind    TxKind
	Address uint16
	Data    []byte
	Acked   bool
}

type Opts struct {
	Address    byte
	WriteCycle time.Duration
	Clock      eeprom.Clock
}

type Opt func(*Opts)

func WithAddress(address byte) Opt {
	return func(o *Opts) {
		o.Address = address
	}
}

func WithWriteCycle(d time.Duration) Opt {
	return func(o *Opts) {
		o.WriteCycle = d
	}
}

func WithClock(clock eeprom.Clock) Opt {
	return func(o *Opts) {
		o.Clock = clock
	}
}

var _ eeprom.I2CBus = &EEPROM{}
var _ eeprom.PartialReader = &EEPROM{}

type EEPROM struct {
	mx       sync.Mutex
	config   Opts
	mem      []byte
	pageSize int
	pointer  int

	busyUntil    int64
	unresponsive bool
	stopAfter    int
	writes       int
	readLimit    int

	log []Transaction
}

// New creates an erased (0xFF filled) part of size bytes.
func New(size, pageSize int, opts ...Opt) *EEPROM {
	config := Opts{
		Address:    DefaultAddress,
		WriteCycle: 5 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Clock == nil {
		config.Clock = eeprom.NewSystemClock()
	}
	mem := make([]byte, size)
	for i := range mem {
		mem[i] = 0xFF
	}
	return &EEPROM{
		config:    config,
		mem:       mem,
		pageSize:  pageSize,
		stopAfter: -1,
	}
}

func (e *EEPROM) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if address != e.config.Address {
		return fmt.Errorf("sim: write to %#x: %w", address, eeprom.ErrNack)
	}
	switch {
	case len(buffer) == 0:
		acked := e.responding()
		e.record(TxProbe, 0, nil, acked)
		if !acked {
			return eeprom.ErrNack
		}
		return nil
	case len(buffer) == 1:
		// only the high address byte, the part waits for the second one
		return fmt.Errorf("sim: incomplete address: %w", eeprom.ErrDataNack)
	}
	addr := (int(buffer[0])<<8 | int(buffer[1])) % len(e.mem)
	data := buffer[2:]
	if !e.responding() {
		kind := TxAddress
		if len(data) > 0 {
			kind = TxWrite
		}
		e.record(kind, uint16(addr), data, false)
		return eeprom.ErrNack
	}
	if len(data) == 0 {
		e.pointer = addr
		e.record(TxAddress, uint16(addr), nil, true)
		return nil
	}
	base := addr - addr%e.pageSize
	off := addr % e.pageSize
	for i, b := range data {
		e.mem[base+(off+i)%e.pageSize] = b
	}
	e.pointer = base + (off+len(data))%e.pageSize
	e.busyUntil = e.config.Clock.Millis() + e.config.WriteCycle.Milliseconds()
	e.writes++
	if e.stopAfter >= 0 && e.writes >= e.stopAfter {
		e.unresponsive = true
	}
	e.record(TxWrite, uint16(addr), data, true)
	return nil
}

func (e *EEPROM) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	n, err := e.ReadSomeFromAddr(ctx, address, buffer)
	if err != nil {
		return err
	}
	if n < len(buffer) {
		return fmt.Errorf("sim: short read: %d of %d bytes", n, len(buffer))
	}
	return nil
}

// ReadSomeFromAddr reads sequentially from the address pointer, serving at
// most the configured read limit.
func (e *EEPROM) ReadSomeFromAddr(ctx context.Context, address byte, buffer []byte) (int, error) {
	e.mx.Lock()
	defer e.mx.Unlock()
	if address != e.config.Address {
		return 0, fmt.Errorf("sim: read from %#x: %w", address, eeprom.ErrNack)
	}
	start := uint16(e.pointer)
	if !e.responding() {
		e.record(TxRead, start, nil, false)
		return 0, eeprom.ErrNack
	}
	n := len(buffer)
	if e.readLimit > 0 && n > e.readLimit {
		n = e.readLimit
	}
	for i := 0; i < n; i++ {
		buffer[i] = e.mem[e.pointer]
		e.pointer = (e.pointer + 1) % len(e.mem)
	}
	e.record(TxRead, start, buffer[:n], true)
	return n, nil
}

func (e *EEPROM) Release(ctx context.Context) error {
	return nil
}

func (e *EEPROM) responding() bool {
	if e.unresponsive {
		return false
	}
	return e.config.Clock.Millis() >= e.busyUntil
}

func (e *EEPROM) record(kind TxKind, address uint16, data []byte, acked bool) {
	tx := Transaction{Kind: kind, Address: address, Acked: acked}
	if len(data) > 0 {
		tx.Data = append([]byte(nil), data...)
	}
	e.log = append(e.log, tx)
}

// SetUnresponsive makes the part ignore every transaction.
func (e *EEPROM) SetUnresponsive(v bool) {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.unresponsive = v
}

// StopAfterWrites makes the part stop responding once k more data writes
// have completed. Negative k disables it.
func (e *EEPROM) StopAfterWrites(k int) {
	e.mx.Lock()
	defer e.mx.Unlock()
	if k < 0 {
		e.stopAfter = -1
		return
	}
	e.stopAfter = e.writes + k
	if k == 0 {
		e.unresponsive = true
	}
}

// LimitReads caps the number of bytes served per read request; 0 removes the cap.
func (e *EEPROM) LimitReads(n int) {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.readLimit = n
}

// Load stores data directly, bypassing the bus and page logic.
func (e *EEPROM) Load(address int, data []byte) {
	e.mx.Lock()
	defer e.mx.Unlock()
	copy(e.mem[address:], data)
}

// Bytes returns a copy of n bytes of the array starting at address.
func (e *EEPROM) Bytes(address, n int) []byte {
	e.mx.Lock()
	defer e.mx.Unlock()
	return append([]byte(nil), e.mem[address:address+n]...)
}

func (e *EEPROM) Size() int {
	return len(e.mem)
}

// Transactions returns the log of transfers since the last ResetLog.
func (e *EEPROM) Transactions() []Transaction {
	e.mx.Lock()
	defer e.mx.Unlock()
	return append([]Transaction(nil), e.log...)
}

// Writes returns acknowledged data writes only.
func (e *EEPROM) Writes() []Transaction {
	var res []Transaction
	for _, tx := range e.Transactions() {
		if tx.Kind == TxWrite && tx.Acked {
			res = append(res, tx)
		}
	}
	return res
}

func (e *EEPROM) ResetLog() {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.log = nil
}
