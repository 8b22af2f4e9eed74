package safetensors_test

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/refinenet/internal/safetensors"
)

func state(t *testing.T) map[string]*tensor.RawTensor {
	t.Helper()
	backend := cpu.New()
	w, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	require.NoError(t, err)
	b, err := tensor.FromSlice([]float32{-1, 0.5}, tensor.Shape{2}, backend)
	require.NoError(t, err)
	l, err := tensor.FromSlice([]int32{7, 8, 9}, tensor.Shape{3}, backend)
	require.NoError(t, err)
	return map[string]*tensor.RawTensor{"layer.weight": w.Raw(), "layer.bias": b.Raw(), "labels": l.Raw()}
}

func TestRoundTrip(t *testing.T) {
	src := state(t)
	path := filepath.Join(t.TempDir(), "s.safetensors")
	require.NoError(t, safetensors.WriteFile(path, src, map[string]string{"stage": "2"}))

	got, meta, err := safetensors.ReadFile(path, tensor.CPU)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"stage": "2"}, meta)
	require.Len(t, got, len(src))
	for name, want := range src {
		require.Contains(t, got, name)
		assert.Equal(t, want.Shape(), got[name].Shape(), name)
		assert.Equal(t, want.DType(), got[name].DType(), name)
	}
	assert.Equal(t, src["layer.weight"].AsFloat32(), got["layer.weight"].AsFloat32())
	assert.Equal(t, src["labels"].AsInt32(), got["labels"].AsInt32())
}

func TestWrite_IsDeterministic(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, safetensors.Write(&a, state(t), nil))
	require.NoError(t, safetensors.Write(&b, state(t), nil))
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestRead_RejectsCorruptInput(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, safetensors.Write(&buf, state(t), nil))
	full := buf.Bytes()

	cases := map[string][]byte{
		"empty":          nil,
		"truncated data": full[:len(full)-3],
		"bad json":       append(binary.LittleEndian.AppendUint64(nil, 4), []byte("{xx}")...),
		"huge header":    binary.LittleEndian.AppendUint64(nil, 1<<40),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := safetensors.Read(bytes.NewReader(data), tensor.CPU)
			assert.ErrorIs(t, err, safetensors.ErrFormat)
		})
	}
}
