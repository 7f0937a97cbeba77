package tangelo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		kind string
	}{
		{nil, "none"},
		{opErr(OpStart, "a.conf", ErrCommunication, errors.New("exec failed")), "communication"},
		{opErr(OpLoad, "a.conf", ErrConfig, nil), "config"},
		{opErr(OpSave, "a.conf", ErrWrite, nil), "write"},
		{opErr(OpListDaemons, "", ErrProtocol, nil), "protocol"},
		{opErr(OpStop, "9", ErrUnknownInstance, nil), "unknown_instance"},
		{opErr(OpStop, "9", ErrInvalidTransition, nil), "invalid_transition"},
		{errors.New("plain"), "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, ErrorKind(tt.err))
	}
}

func TestOpErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(opErr(OpStatus, "101", ErrCommunication, cause))

	assert.ErrorIs(t, err, ErrCommunication)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, `tangelo status "101": communication error: connection refused`, err.Error())

	var me MultiError
	assert.NoError(t, me.Err())
	me.Add(nil)
	me.Add(err)
	me.Add(opErr(OpResolve, "102", ErrProtocol, nil))
	require.Error(t, me.Err())
	assert.ErrorIs(t, me.Err(), ErrProtocol)
	assert.ErrorIs(t, me.Err(), cause)
	assert.Contains(t, me.Error(), "2 errors occurred")
}
