package eeprom

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Err(t *testing.T) {
	tests := []struct {
		given    Status
		expected error
	}{
		{StatusOK, nil},
		{StatusDataTooLong, ErrDataTooLong},
		{StatusAddrNack, ErrNack},
		{StatusDataNack, ErrDataNack},
		{StatusOther, ErrBusFault},
		{Status(9), ErrBusFault},
	}
	for _, test := range tests {
		t.Run(test.given.String(), func(t *testing.T) {
			assert.Equal(t, test.expected, test.given.Err())
		})
	}
}

func TestSystemClock_Monotonic(t *testing.T) {
	c := NewSystemClock()
	first := c.Millis()
	c.Sleep(2 * time.Millisecond)
	assert.GreaterOrEqual(t, c.Millis()-first, int64(2))
}
