package battery

import (
	"errors"
	"testing"
	"time"

	"github.com/TheCacophonyProject/tc2-rate-controller/i2crequest"
	"github.com/TheCacophonyProject/tc2-rate-controller/ratecontrol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

var noSleepFn = func(d time.Duration) {}

func frame(raw uint16) []byte {
	data := []byte{byte(raw >> 8), byte(raw)}
	return append(data, calculateCRC(data))
}

type reading struct {
	raw uint16
	err error
}

type scriptedReader struct {
	readings []reading
	calls    int
}

func (r *scriptedReader) ReadRaw() (uint16, error) {
	if r.calls >= len(r.readings) {
		return 0, errors.New("no readings left")
	}
	next := r.readings[r.calls]
	r.calls++
	return next.raw, next.err
}

func TestDecodeFrame(t *testing.T) {
	raw, err := decodeFrame(frame(2949))
	require.NoError(t, err)
	assert.Equal(t, uint16(2949), raw)

	bad := frame(2949)
	bad[2] ^= 0xFF
	_, err = decodeFrame(bad)
	assert.ErrorIs(t, err, errBadCRC)

	_, err = decodeFrame(frame(0x1000))
	assert.ErrorIs(t, err, errOutOfRange)

	_, err = decodeFrame([]byte{0x01})
	assert.Error(t, err)
}

func TestDBusReader(t *testing.T) {
	defer i2crequest.StopMocking()
	i2crequest.MockTxResponses([]i2crequest.TxResponse{
		{Response: frame(2900)},
		{Err: errors.New("foo")},
	})
	r := DBusReader{Address: DefaultADCAddress, Register: DefaultADCRegister}

	raw, err := r.ReadRaw()
	require.NoError(t, err)
	assert.Equal(t, uint16(2900), raw)

	_, err = r.ReadRaw()
	assert.EqualError(t, err, "foo")
}

func TestDBusReaderCheck(t *testing.T) {
	defer i2crequest.StopMocking()
	i2crequest.MockTxResponses([]i2crequest.TxResponse{
		{Response: []byte{0x00}},
		{Err: errors.New("no device")},
	})
	r := DBusReader{Address: DefaultADCAddress}
	assert.NoError(t, r.Check())
	assert.Error(t, r.Check())
}

func TestBusReader(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: DefaultADCAddress, W: []byte{DefaultADCRegister}, R: frame(2949)},
			{Addr: DefaultADCAddress, W: []byte{DefaultADCRegister}, R: []byte{0x0B, 0x85, 0x00}},
		},
		DontPanic: true,
	}
	r := NewBusReader(bus, DefaultADCAddress, DefaultADCRegister)

	raw, err := r.ReadRaw()
	require.NoError(t, err)
	assert.Equal(t, uint16(2949), raw)

	_, err = r.ReadRaw()
	assert.ErrorIs(t, err, errBadCRC)
	assert.NoError(t, bus.Close())
}

func TestSamplerEstimate(t *testing.T) {
	sleepFn = noSleepFn
	readings := []reading{}
	for _, raw := range []uint16{2949, 2949, 0, 2949, 2949, 2949, 4095, 2949, 2949, 2949, 2949} {
		readings = append(readings, reading{raw: raw})
	}
	s := NewSampler(&scriptedReader{readings: readings})

	mv, batch, err := s.Estimate()
	require.NoError(t, err)
	assert.Equal(t, uint16(3599), mv)
	assert.Equal(t, uint16(0), batch[2])
	assert.Equal(t, ratecontrol.MedianMillivolts(batch), mv)
}

func TestSamplerRetries(t *testing.T) {
	sleeps := 0
	sleepFn = func(d time.Duration) { sleeps++ }
	readings := []reading{{err: errBadCRC}, {err: errBadCRC}}
	for range ratecontrol.SamplesPerEstimate {
		readings = append(readings, reading{raw: 2900})
	}
	s := NewSampler(&scriptedReader{readings: readings})

	batch, err := s.ReadBatch()
	require.NoError(t, err)
	assert.Equal(t, 2, sleeps)
	for _, raw := range batch {
		assert.Equal(t, uint16(2900), raw)
	}
}

func TestSamplerGivesUp(t *testing.T) {
	sleepFn = noSleepFn
	expectedErr := errors.New("i2c timeout")
	readings := []reading{{raw: 2900}}
	for range maxReadAttempts {
		readings = append(readings, reading{err: expectedErr})
	}
	s := NewSampler(&scriptedReader{readings: readings})

	_, _, err := s.Estimate()
	assert.ErrorIs(t, err, expectedErr)
	assert.ErrorContains(t, err, "sample 1")
}
