package modbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusClassifiers(t *testing.T) {
	require := require.New(t)

	require.True(StatusGood.IsGood())
	require.False(StatusGood.IsBad())
	require.False(StatusGood.IsProcessing())

	require.True(StatusProcessing.IsProcessing())
	require.False(StatusProcessing.IsBad())
	require.False(StatusProcessing.IsGood())

	bad := []StatusCode{
		StatusBad,
		StatusBadIllegalFunction,
		StatusBadIllegalDataAddress,
		StatusBadIllegalDataValue,
		StatusBadServerDeviceFailure,
		StatusBadAcknowledge,
		StatusBadServerDeviceBusy,
		StatusBadNegativeAcknowledge,
		StatusBadMemoryParityError,
		StatusBadGatewayPathUnavailable,
		StatusBadGatewayTargetNoResponse,
		StatusBadPortClosed,
		StatusBadTcpWrite,
		StatusBadTcpDisconnect,
		StatusBadSerialOpen,
		StatusBadSerialWriteTimeout,
		StatusBadSerialReadTimeout,
		StatusBadCrc,
		StatusBadWriteBufferOverflow,
		StatusBadNotCorrectRequest,
		StatusBadNotCorrectResponse,
	}
	for _, st := range bad {
		require.True(st.IsBad(), "status %s", st)
		require.False(st.IsGood(), "status %s", st)
		require.False(st.IsProcessing(), "status %s", st)
	}
}

func TestStatusExceptionMapping(t *testing.T) {
	require := require.New(t)

	exceptions := map[StatusCode]byte{
		StatusBadIllegalFunction:         0x01,
		StatusBadIllegalDataAddress:      0x02,
		StatusBadIllegalDataValue:        0x03,
		StatusBadServerDeviceFailure:     0x04,
		StatusBadAcknowledge:             0x05,
		StatusBadServerDeviceBusy:        0x06,
		StatusBadNegativeAcknowledge:     0x07,
		StatusBadMemoryParityError:       0x08,
		StatusBadGatewayPathUnavailable:  0x0A,
		StatusBadGatewayTargetNoResponse: 0x0B,
	}
	for st, code := range exceptions {
		require.True(st.IsStandardException(), "status %s", st)
		require.Equal(code, st.ExceptionCode(), "status %s", st)
		require.Equal(st, StatusFromExceptionCode(code), "code %#02x", code)
	}

	// Not part of the wire exception band.
	for _, st := range []StatusCode{
		StatusGood, StatusProcessing, StatusBad,
		StatusBadPortClosed, StatusBadCrc,
		StatusBadNotCorrectRequest, StatusBadNotCorrectResponse,
	} {
		require.False(st.IsStandardException(), "status %s", st)
		require.Equal(byte(0), st.ExceptionCode(), "status %s", st)
	}

	// Unknown and reserved codes collapse to the generic failure.
	require.Equal(StatusBad, StatusFromExceptionCode(0))
	require.Equal(StatusBad, StatusFromExceptionCode(0x09))
	require.Equal(StatusBad, StatusFromExceptionCode(0x55))
}

func TestStatusString(t *testing.T) {
	require := require.New(t)

	require.Equal("Good", StatusGood.String())
	require.Equal("Processing", StatusProcessing.String())
	require.Equal("BadIllegalDataValue", StatusBadIllegalDataValue.String())
	require.Equal("BadNotCorrectRequest", StatusBadNotCorrectRequest.String())
	require.Equal("Unknown", StatusCode(0x12345678).String())
}
