package transform

import (
	"context"
	"testing"

	"github.com/andresmejia3/posepipe/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame2x1() types.Frame {
	return types.Frame{Width: 2, Height: 1, Pix: []byte{
		10, 20, 30, 255,
		200, 100, 50, 128,
	}}
}

func TestBuiltins(t *testing.T) {
	tests := []struct {
		name string
		want []byte
	}{
		{"identity", []byte{10, 20, 30, 255, 200, 100, 50, 128}},
		{"invert", []byte{245, 235, 225, 255, 55, 155, 205, 128}},
		{"grayscale", []byte{18, 18, 18, 255, 124, 124, 124, 128}},
		{"mirror", []byte{200, 100, 50, 128, 10, 20, 30, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory, err := Builtin(tt.name)
			require.NoError(t, err)
			tr, err := factory(context.Background(), 0)
			require.NoError(t, err)
			defer tr.Close()

			in := frame2x1()
			out, err := tr.Apply(in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Pix)

			// Input must not be mutated
			assert.Equal(t, frame2x1().Pix, in.Pix)
		})
	}
}

func TestBuiltinRejectsMalformedFrame(t *testing.T) {
	_, err := Invert(types.Frame{Width: 2, Height: 2, Pix: []byte{1, 2, 3}})
	assert.Error(t, err)
}

func TestUnknownBuiltin(t *testing.T) {
	_, err := Builtin("pose-v9")
	assert.ErrorContains(t, err, "unknown transform")
	assert.False(t, IsBuiltin("pose-v9"))
	assert.Equal(t, []string{"grayscale", "identity", "invert", "mirror"}, Names())
}
