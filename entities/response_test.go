package entities

import (
	"testing"

	"tompei-viewer/constants"

	"github.com/stretchr/testify/assert"
)

func TestNewResponse(t *testing.T) {
	resp := NewResponse()
	assert.Equal(t, constants.ServerOK, resp.ErrorCode)
	assert.Greater(t, resp.ServerTime, int64(0))
}

func TestResponseFail(t *testing.T) {
	resp := NewResponse().Fail(constants.ServerNotFound, "unknown patient")
	assert.Equal(t, constants.ServerNotFound, resp.ErrorCode)
	assert.Contains(t, resp.String(), `"message":"unknown patient"`)
}
