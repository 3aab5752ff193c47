package payout

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("withdraw: %w", Unavailable("", "", cause))

	assert.True(t, errors.Is(err, ErrGatewayUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrGatewayRejected))
	assert.True(t, IsUnavailable(err))

	rej := Rejected("2001", "The initiator information is invalid.", nil)
	assert.True(t, errors.Is(rej, ErrGatewayRejected))
	assert.Contains(t, rej.Error(), "code=2001")

	code, msg := Info(rej)
	assert.Equal(t, "2001", code)
	assert.Equal(t, "The initiator information is invalid.", msg)

	assert.True(t, IsUnavailable(context.DeadlineExceeded))
}
