package sl_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codustry/gebwai/internal/lib/sl"
)

func TestErr_ReturnsCorrectAttr(t *testing.T) {
	attr := sl.Err(errors.New("omise: unexpected status"))

	assert.Equal(t, "error", attr.Key)
	assert.Equal(t, slog.StringValue("omise: unexpected status"), attr.Value)
}

func TestErr_NilError(t *testing.T) {
	attr := sl.Err(nil)
	assert.Equal(t, "error", attr.Key)
	assert.Equal(t, "", attr.Value.String())
}

func TestOpAndLineUser(t *testing.T) {
	assert.Equal(t, slog.String("op", "billing.Subscribe"), sl.Op("billing.Subscribe"))
	assert.Equal(t, slog.String("line_user_id", "U1"), sl.LineUser("U1"))
}
