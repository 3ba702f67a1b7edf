package codec

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// DefaultTargetPartSize is used when a JSONBufferingWriter is constructed
// with a non-positive target size.
const DefaultTargetPartSize = 5 * 1024 * 1024

// PassThroughBuilder is the trivial BatchBuilder: every record becomes its
// own batch immediately, so it never holds anything across calls.
//
// Example:
//
//	builder := codec.NewPassThroughBuilder[MyRecord]()
//	batch, ready := builder.Insert(value)
type PassThroughBuilder[T any] struct{}

// NewPassThroughBuilder creates a PassThroughBuilder for record type T.
func NewPassThroughBuilder[T any]() *PassThroughBuilder[T] {
	return &PassThroughBuilder[T]{}
}

func (b *PassThroughBuilder[T]) Insert(value T) (T, bool) {
	return value, true
}

func (b *PassThroughBuilder[T]) BufferedInputs() []T {
	return nil
}

// FlushBuffer is never called in practice: PassThroughBuilder never holds a
// record past Insert, so BufferedInputs is always empty and there is
// nothing to flush.
func (b *PassThroughBuilder[T]) FlushBuffer() T {
	var zero T
	return zero
}

// JSONBufferingWriter implements BatchBufferingWriter by appending each
// batch's JSON encoding, newline-delimited, to a growing buffer, evicting
// a part once the buffer crosses targetPartSize.
type JSONBufferingWriter[T any] struct {
	buffer         []byte
	targetPartSize int
}

// NewJSONBufferingWriter creates a JSONBufferingWriter that evicts parts
// once the buffer exceeds targetPartSize bytes. A non-positive size falls
// back to DefaultTargetPartSize.
func NewJSONBufferingWriter[T any](targetPartSize int) *JSONBufferingWriter[T] {
	if targetPartSize <= 0 {
		targetPartSize = DefaultTargetPartSize
	}
	return &JSONBufferingWriter[T]{targetPartSize: targetPartSize}
}

func (w *JSONBufferingWriter[T]) Suffix() string { return "json" }

func (w *JSONBufferingWriter[T]) AddBatchData(data T) ([]byte, bool, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, false, fmt.Errorf("codec: marshal json record: %w", err)
	}
	w.buffer = append(w.buffer, encoded...)
	w.buffer = append(w.buffer, '\n')

	if len(w.buffer) > w.targetPartSize {
		return w.evict(), true, nil
	}
	return nil, false, nil
}

func (w *JSONBufferingWriter[T]) BufferLength() int {
	return len(w.buffer)
}

func (w *JSONBufferingWriter[T]) evict() []byte {
	out := w.buffer
	w.buffer = nil
	return out
}

func (w *JSONBufferingWriter[T]) TrailingBytesForCheckpoint() ([]byte, bool) {
	if len(w.buffer) == 0 {
		return nil, false
	}
	trailing := make([]byte, len(w.buffer))
	copy(trailing, w.buffer)
	return trailing, true
}

func (w *JSONBufferingWriter[T]) Close(finalBatch *T) ([]byte, bool, error) {
	if finalBatch != nil {
		if part, ready, err := w.AddBatchData(*finalBatch); err != nil {
			return nil, false, err
		} else if ready {
			return part, true, nil
		}
	}
	if len(w.buffer) == 0 {
		return nil, false, nil
	}
	return w.evict(), true, nil
}
