package node

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsModelNotFoundError(t *testing.T) {
	assert.False(t, IsModelNotFoundError(nil))
	assert.True(t, IsModelNotFoundError(errors.New(`error, status code: 404, message: The model "o9" does not exist`)))
	assert.True(t, IsModelNotFoundError(errors.New("code: model_not_found")))
	assert.False(t, IsModelNotFoundError(errors.New("context deadline exceeded")))
}
