package busctx_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/baton/busctx"
)

func TestWithCapture_RoundTrip(t *testing.T) {
	d := busctx.Delivery{ReplyTo: "billing@host", Attempt: 3}
	ctx := busctx.With(context.Background(), d)

	assert.Equal(t, d, busctx.Capture(ctx))
}

func TestCapture_ZeroWhenAbsent(t *testing.T) {
	got := busctx.Capture(context.Background())
	assert.Equal(t, busctx.Delivery{}, got)
}
