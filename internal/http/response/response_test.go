package response

import (
	"testing"

	"github.com/go-playground/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOKWithData(t *testing.T) {
	data := map[string]bool{"started": true}
	resp := StatusOKWithData(data)

	assert.Equal(t, StatusOK, resp.Status)
	assert.Empty(t, resp.Error)
	assert.Equal(t, data, resp.Data)
}

func TestError(t *testing.T) {
	resp := Error("payment provider error")

	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, "payment provider error", resp.Error)
}

func TestValidationError(t *testing.T) {
	type chargeRequest struct {
		Token  string `validate:"required"`
		Amount int64  `validate:"oneof=5900 58800"`
		Email  string `validate:"omitempty,email"`
	}

	err := validator.New().Struct(chargeRequest{Amount: 1, Email: "nope"})
	require.Error(t, err)

	resp := ValidationError(err.(validator.ValidationErrors))

	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, resp.Error, "field Token is a required field")
	assert.Contains(t, resp.Error, "field Amount must be one of: 5900 58800")
	assert.Contains(t, resp.Error, "field Email must be a valid email")
}
