// Package codec implements the Encoder Port: the pair of capabilities that
// turn opaque input records into the byte parts a multipart upload
// transports. A BatchBuilder groups records into batches; a sibling
// BatchBufferingWriter serializes batches into a growing byte buffer and
// evicts the buffer as one part once it crosses a target size.
package codec

// BatchBuilder accepts one input record at a time and may emit zero or one
// ready batch of type B. BufferedInputs returns the records it still holds
// so a checkpoint doesn't lose records sitting in a partial batch.
// FlushBuffer forces emission of a (possibly partial) batch on close.
type BatchBuilder[T, B any] interface {
	// Insert accepts value and reports whether a batch became ready.
	Insert(value T) (batch B, ready bool)

	// BufferedInputs returns the records accepted but not yet promoted to
	// a batch.
	BufferedInputs() []T

	// FlushBuffer forces emission of whatever has been buffered, for use
	// when a writer is closing.
	FlushBuffer() B
}

// BatchBufferingWriter accepts batches of type B and serializes them into a
// growing byte buffer, emitting one []byte part whenever the buffer crosses
// its configured target size.
type BatchBufferingWriter[B any] interface {
	// Suffix is the file extension this encoder produces, used when
	// formatting a FileHandle.
	Suffix() string

	// AddBatchData serializes data into the internal buffer and reports a
	// part to upload if the buffer has crossed its target size.
	AddBatchData(data B) (part []byte, ready bool, err error)

	// BufferLength reports the current size of the unflushed buffer.
	BufferLength() int

	// TrailingBytesForCheckpoint snapshots the currently unflushed buffer
	// contents without resetting it, for inclusion in a checkpoint.
	TrailingBytesForCheckpoint() (trailing []byte, present bool)

	// Close flushes finalBatch (if non-nil) and any remaining buffered
	// bytes, returning a final part if there's anything to emit.
	Close(finalBatch *B) (part []byte, ready bool, err error)
}
