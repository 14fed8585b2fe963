package battery

import (
	"errors"
	"fmt"

	"github.com/TheCacophonyProject/tc2-rate-controller/i2crequest"
	"github.com/sigurn/crc8"
	"periph.io/x/conn/v3/i2c"
)

const (
	DefaultADCAddress  = 0x48
	DefaultADCRegister = 0x00
	frameLen           = 3
	maxRaw             = 1<<12 - 1
	txTimeoutMs        = 1000
)

var (
	errBadCRC     = errors.New("bad crc")
	errOutOfRange = errors.New("raw reading out of 12 bit range")

	crcTable = crc8.MakeTable(crc8.Params{
		Poly:   0x31, // Polynomial 1 + x^4 + x^5 + x^8
		Init:   0xFF,
		RefIn:  false,
		RefOut: false,
		XorOut: 0x00,
	})
)

// Reader returns one raw 12 bit count from the battery ADC.
type Reader interface {
	ReadRaw() (uint16, error)
}

func calculateCRC(data []byte) byte {
	return crc8.Checksum(data, crcTable)
}

// decodeFrame checks a [MSB, LSB, CRC8] frame and returns the count it holds.
func decodeFrame(data []byte) (uint16, error) {
	if len(data) != frameLen {
		return 0, fmt.Errorf("reading length: %d", len(data))
	}
	if crc := calculateCRC(data[:2]); crc != data[2] {
		return 0, fmt.Errorf("%w: got 0x%X, calculated 0x%X", errBadCRC, data[2], crc)
	}
	raw := uint16(data[0])<<8 | uint16(data[1])
	if raw > maxRaw {
		return 0, fmt.Errorf("%w: %d", errOutOfRange, raw)
	}
	return raw, nil
}

// DBusReader reads the ADC through the I2C D-Bus service.
type DBusReader struct {
	Address  byte
	Register byte
}

// Check returns an error when nothing answers at the ADC address.
func (r DBusReader) Check() error {
	return i2crequest.CheckAddress(r.Address, txTimeoutMs)
}

func (r DBusReader) ReadRaw() (uint16, error) {
	data, err := i2crequest.Tx(r.Address, []byte{r.Register}, frameLen, txTimeoutMs)
	if err != nil {
		return 0, err
	}
	return decodeFrame(data)
}

// BusReader reads the ADC directly from an I2C bus.
type BusReader struct {
	dev      *i2c.Dev
	register byte
}

func NewBusReader(bus i2c.Bus, address uint16, register byte) *BusReader {
	return &BusReader{
		dev:      &i2c.Dev{Bus: bus, Addr: address},
		register: register,
	}
}

func (r *BusReader) ReadRaw() (uint16, error) {
	data := make([]byte, frameLen)
	if err := r.dev.Tx([]byte{r.register}, data); err != nil {
		return 0, err
	}
	return decodeFrame(data)
}
