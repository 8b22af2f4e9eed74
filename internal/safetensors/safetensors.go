// Package safetensors reads and writes state dicts in the SafeTensors layout:
//
//	[8 bytes: header size, uint64 little-endian]
//	[header: JSON object, tensor name -> {dtype, shape, data_offsets}]
//	[tensor data, in header order]
//
// String metadata is stored under the "__metadata__" header key.
package safetensors

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"sort"

	"github.com/born-ml/born/tensor"
	"github.com/pkg/errors"
)

const metadataKey = "__metadata__"

// maxHeaderSize rejects corrupt files before allocating the header.
const maxHeaderSize = 64 << 20

// ErrFormat is returned for files that are not valid SafeTensors.
var ErrFormat = errors.New("safetensors: invalid file")

type entry struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

var dtypeNames = map[tensor.DataType]string{
	tensor.Float32: "F32",
	tensor.Float64: "F64",
	tensor.Int32:   "I32",
	tensor.Int64:   "I64",
	tensor.Uint8:   "U8",
	tensor.Bool:    "BOOL",
}

func dtypeFromName(name string) (tensor.DataType, bool) {
	for dt, n := range dtypeNames {
		if n == name {
			return dt, true
		}
	}
	return 0, false
}

// Write encodes state and metadata to w. Tensors are laid out in name order.
func Write(w io.Writer, state map[string]*tensor.RawTensor, metadata map[string]string) error {
	names := make([]string, 0, len(state))
	for name := range state {
		if name == metadataKey {
			return errors.Errorf("safetensors: reserved tensor name %q", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	var offset int64
	for _, name := range names {
		raw := state[name]
		dtype, ok := dtypeNames[raw.DType()]
		if !ok {
			return errors.Errorf("safetensors: tensor %s has unsupported dtype %s", name, raw.DType())
		}
		shape := make([]int64, len(raw.Shape()))
		for i, d := range raw.Shape() {
			shape[i] = int64(d)
		}
		size := int64(raw.ByteSize())
		header[name] = entry{DType: dtype, Shape: shape, DataOffsets: [2]int64{offset, offset + size}}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "safetensors: marshal header")
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return errors.Wrap(err, "safetensors: write header size")
	}
	if _, err := w.Write(headerJSON); err != nil {
		return errors.Wrap(err, "safetensors: write header")
	}
	for _, name := range names {
		raw := state[name]
		if _, err := w.Write(raw.Data()[:raw.ByteSize()]); err != nil {
			return errors.Wrapf(err, "safetensors: write tensor %s", name)
		}
	}
	return nil
}

// WriteFile writes state and metadata to path, replacing any existing file.
func WriteFile(path string, state map[string]*tensor.RawTensor, metadata map[string]string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "safetensors: create file")
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	bw := bufio.NewWriter(f)
	if err := Write(bw, state, metadata); err != nil {
		return err
	}
	return bw.Flush()
}

// Read decodes a state dict and its metadata from r. Tensors are allocated
// on device.
func Read(r io.Reader, device tensor.Device) (map[string]*tensor.RawTensor, map[string]string, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, nil, errors.Wrap(ErrFormat, "missing header size")
	}
	if headerSize == 0 || headerSize > maxHeaderSize {
		return nil, nil, errors.Wrapf(ErrFormat, "header size %d", headerSize)
	}
	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, nil, errors.Wrap(ErrFormat, "truncated header")
	}
	var header map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, nil, errors.Wrapf(ErrFormat, "header: %v", err)
	}

	var metadata map[string]string
	if m, ok := header[metadataKey]; ok {
		if err := json.Unmarshal(m, &metadata); err != nil {
			return nil, nil, errors.Wrapf(ErrFormat, "metadata: %v", err)
		}
		delete(header, metadataKey)
	}

	type located struct {
		name string
		entry
	}
	entries := make([]located, 0, len(header))
	for name, msg := range header {
		var e entry
		if err := json.Unmarshal(msg, &e); err != nil {
			return nil, nil, errors.Wrapf(ErrFormat, "tensor %s: %v", name, err)
		}
		entries = append(entries, located{name, e})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].DataOffsets[0] < entries[j].DataOffsets[0] })

	state := make(map[string]*tensor.RawTensor, len(entries))
	var offset int64
	for _, e := range entries {
		dtype, ok := dtypeFromName(e.DType)
		if !ok {
			return nil, nil, errors.Wrapf(ErrFormat, "tensor %s: unknown dtype %q", e.name, e.DType)
		}
		shape := make(tensor.Shape, len(e.Shape))
		for i, d := range e.Shape {
			if d < 0 {
				return nil, nil, errors.Wrapf(ErrFormat, "tensor %s: negative dimension", e.name)
			}
			shape[i] = int(d)
		}
		size := int64(shape.NumElements() * dtype.Size())
		if e.DataOffsets[0] != offset || e.DataOffsets[1]-e.DataOffsets[0] != size {
			return nil, nil, errors.Wrapf(ErrFormat, "tensor %s: data offsets %v", e.name, e.DataOffsets)
		}
		raw, err := tensor.NewRaw(shape, dtype, device)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "safetensors: allocate %s", e.name)
		}
		if _, err := io.ReadFull(r, raw.Data()[:size]); err != nil {
			return nil, nil, errors.Wrapf(ErrFormat, "tensor %s: truncated data", e.name)
		}
		state[e.name] = raw
		offset += size
	}
	return state, metadata, nil
}

// ReadFile reads the file at path. See Read.
func ReadFile(path string, device tensor.Device) (map[string]*tensor.RawTensor, map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "safetensors: open file")
	}
	defer f.Close()
	return Read(bufio.NewReader(f), device)
}
