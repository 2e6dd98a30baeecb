package errors

import (
	stdliberrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	e := New(ErrCodeDegenerateFeature, "feature has zero variance")
	assert.Equal(t, "[SIG_001] feature has zero variance", e.Error())

	withDetail := e.WithDetail("feature=Nuclei_Area group=control")
	assert.Equal(t, "[SIG_001] feature has zero variance: feature=Nuclei_Area group=control", withDetail.Error())
	// WithDetail must not mutate the receiver.
	assert.Empty(t, e.Detail)
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeDatabaseError, "should be nil"))

	cause := stdliberrors.New("connection refused")
	wrapped := Wrap(cause, ErrCodeDatabaseError, "save failed")
	require.NotNil(t, wrapped)
	assert.True(t, stdliberrors.Is(wrapped, cause))
	assert.Equal(t, ErrCodeDatabaseError, wrapped.Code)
}

func TestIsCode(t *testing.T) {
	inner := New(ErrCodeNoClustersFound, "all points labelled noise")
	outer := fmt.Errorf("compound CMP-0042: %w", inner)

	assert.True(t, IsCode(outer, ErrCodeNoClustersFound))
	assert.False(t, IsCode(outer, ErrCodeEmptyRetainedSet))
	assert.False(t, IsCode(nil, ErrCodeNoClustersFound))
}

func TestIsDegenerate(t *testing.T) {
	degenerate := []*AppError{
		New(ErrCodeDegenerateFeature, ""),
		New(ErrCodeInsufficientSamples, ""),
		New(ErrCodeNoClustersFound, ""),
		New(ErrCodeEmptyRetainedSet, ""),
		New(ErrCodeNoControlClusters, ""),
	}
	for _, e := range degenerate {
		assert.True(t, IsDegenerate(e), e.Code)
	}

	assert.False(t, IsDegenerate(New(ErrCodeDatabaseError, "")))
	assert.False(t, IsDegenerate(stdliberrors.New("plain")))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrorCode("OK"), GetCode(nil))
	assert.Equal(t, ErrCodeInternal, GetCode(stdliberrors.New("plain")))
	assert.Equal(t, ErrCodeRunNotFound, GetCode(New(ErrCodeRunNotFound, "gone")))
}

func TestHTTPStatusForCode(t *testing.T) {
	assert.Equal(t, 404, HTTPStatusForCode(ErrCodeRunNotFound))
	assert.Equal(t, 422, HTTPStatusForCode(ErrCodeEmptyRetainedSet))
	assert.Equal(t, 500, HTTPStatusForCode(ErrorCode("UNMAPPED_999")))
}

func TestModuleForCode(t *testing.T) {
	assert.Equal(t, "SIG", ModuleForCode(ErrCodeDegenerateFeature))
	assert.Equal(t, "CLU", ModuleForCode(ErrCodeNoClustersFound))
	assert.Equal(t, "RNK", ModuleForCode(ErrCodeUnknownRankStrategy))
}
