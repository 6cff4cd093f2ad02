package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStartNodeSpan_ReturnsUsableContextAndSpan(t *testing.T) {
	ctx, span := StartNodeSpan(context.Background(), "n1", "transform")
	defer span.End()
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
}

func TestStartSidecarSpan_ReturnsUsableSpan(t *testing.T) {
	_, span := StartSidecarSpan(context.Background(), "chat")
	defer span.End()
	assert.NotNil(t, span)
}

func TestStartSearchSpan_ReturnsUsableSpan(t *testing.T) {
	_, span := StartSearchSpan(context.Background(), "/var/index")
	defer span.End()
	assert.NotNil(t, span)
}

func TestRecordError_NilErrorIsNoop(t *testing.T) {
	_, span := StartNodeSpan(context.Background(), "n1", "transform")
	defer span.End()
	assert.NotPanics(t, func() {
		RecordError(span, nil)
	})
}

func TestRecordError_RecordsNonNilError(t *testing.T) {
	_, span := StartNodeSpan(context.Background(), "n1", "transform")
	defer span.End()
	assert.NotPanics(t, func() {
		RecordError(span, errors.New("boom"))
	})
}
