package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyDeviceError(t *testing.T) {
	assert.Nil(t, ClassifyDeviceError(nil))

	err := ClassifyDeviceError(errors.New("NotAllowedError: Permission denied by system"))
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.True(t, IsPermissionError(err))

	err = ClassifyDeviceError(errors.New("device busy"))
	assert.ErrorIs(t, err, ErrTransientDevice)
	assert.False(t, IsPermissionError(err))
}
