package snaperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageIncludesOp(t *testing.T) {
	err := ConnectError("dial ws://x", errors.New("refused"))
	assert.Equal(t, "connect: dial ws://x: refused", err.Error())
}

func TestErrorMessageOmitsEmptyOp(t *testing.T) {
	err := newErr(KindCompare, "", errors.New("decode failed"))
	assert.Equal(t, "compare: decode failed", err.Error())
}

func TestErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := ProtocolError("evaluate", inner)
	assert.ErrorIs(t, err, inner)
}

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	base := CaptureTimeoutError("story/desktop", errors.New("timed out"))
	wrapped := fmt.Errorf("capture job failed: %w", base)

	assert.True(t, Is(wrapped, KindCaptureTimeout))
	assert.False(t, Is(wrapped, KindCompare))
}

func TestIsFalseForPlainError(t *testing.T) {
	assert.False(t, Is(errors.New("plain"), KindConnect))
}

func TestAllConstructorsTagTheirKind(t *testing.T) {
	cases := []struct {
		err  *Error
		kind Kind
	}{
		{ConnectError("op", errors.New("e")), KindConnect},
		{ProtocolError("op", errors.New("e")), KindProtocol},
		{StageTimeoutError("stage", errors.New("e")), KindStageTimeout},
		{CaptureTimeoutError("job", errors.New("e")), KindCaptureTimeout},
		{BrowserCrashedError("op", errors.New("e")), KindBrowserCrashed},
		{CompareError("op", errors.New("e")), KindCompare},
		{ConfigError("op", errors.New("e")), KindConfig},
	}
	for _, c := range cases {
		assert.Equal(t, c.kind, c.err.Kind)
	}
}
