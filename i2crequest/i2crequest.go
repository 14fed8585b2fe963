// Package i2crequest runs I2C transactions through the I2C D-Bus service so
// that only one process owns the bus.
package i2crequest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus"
)

const (
	dbusName = "org.cacophony.i2c"
	dbusPath = "/org/cacophony/i2c"
)

// TxResponse is a canned response returned by Tx while mocking.
type TxResponse struct {
	Response []byte
	Err      error
}

var (
	mockMu        sync.Mutex
	mockResponses []TxResponse
	mocking       bool

	errNoMockResponse = errors.New("no mock response left")
)

// MockTxResponses makes following calls to Tx return the given responses in
// order instead of calling the D-Bus service.
func MockTxResponses(responses []TxResponse) {
	mockMu.Lock()
	defer mockMu.Unlock()
	mocking = true
	mockResponses = append([]TxResponse(nil), responses...)
}

// StopMocking sends transactions to the D-Bus service again.
func StopMocking() {
	mockMu.Lock()
	defer mockMu.Unlock()
	mocking = false
	mockResponses = nil
}

func nextMockResponse() (bool, []byte, error) {
	mockMu.Lock()
	defer mockMu.Unlock()
	if !mocking {
		return false, nil, nil
	}
	if len(mockResponses) == 0 {
		return true, nil, errNoMockResponse
	}
	r := mockResponses[0]
	mockResponses = mockResponses[1:]
	return true, r.Response, r.Err
}

// Tx writes to the device at address then reads readLen bytes back. timeout
// is in milliseconds.
func Tx(address byte, write []byte, readLen, timeout int) ([]byte, error) {
	if mocked, response, err := nextMockResponse(); mocked {
		return response, err
	}

	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	obj := conn.Object(dbusName, dbusPath)

	var response []byte
	if err := obj.Call(dbusName+".Tx", 0, address, write, readLen, timeout).Store(&response); err != nil {
		return nil, err
	}
	if len(response) != readLen {
		return nil, fmt.Errorf("expected %d bytes from 0x%X, got %d", readLen, address, len(response))
	}
	return response, nil
}

func CheckAddress(address byte, timeout int) error {
	_, err := Tx(address, []byte{0x00}, 1, timeout)
	return err
}
