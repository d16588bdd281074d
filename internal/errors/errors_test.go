package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without cause",
			err:  NewDataShapeError("deals: bad column", nil),
			want: "[DATA_SHAPE] deals: bad column",
		},
		{
			name: "with cause",
			err:  NewConfigError("load config", fmt.Errorf("boom")),
			want: "[CONFIG] load config: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIsDataShapeThroughWrapping(t *testing.T) {
	base := MissingColumn("deals", "updated_at")
	wrapped := fmt.Errorf("dead deals: %w", base)

	assert.True(t, IsDataShape(wrapped))
	assert.False(t, IsConfig(wrapped))
	assert.False(t, IsDataShape(stderrors.New("plain")))
	assert.Equal(t, "updated_at", base.Context["column"])
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("root")
	err := NewParsingError("parse", cause)
	assert.ErrorIs(t, err, cause)
}
