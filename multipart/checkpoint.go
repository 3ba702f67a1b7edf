// Package multipart implements the per-file multipart upload state machine:
// it decides when to start a multipart upload, tracks which parts are still
// buffered versus durably uploaded, and projects that state into a
// checkpointable snapshot that can rebuild an identical upload after a
// restart.
package multipart

import "fmt"

// CheckpointKind discriminates the five mutually exclusive shapes a file's
// checkpointed state can take.
type CheckpointKind int

const (
	// Empty means nothing was ever written to this file.
	Empty CheckpointKind = iota
	// MultiPartNotCreated means data was buffered but no multipart upload
	// has been started yet.
	MultiPartNotCreated
	// MultiPartInFlight means a multipart upload is open and the writer
	// producing data for it is still open too.
	MultiPartInFlight
	// MultiPartWriterClosed means the writer is closed but not every part
	// has finished uploading yet.
	MultiPartWriterClosed
	// MultiPartWriterUploadCompleted means every part has uploaded and the
	// file is ready to be finished with CloseMultipart.
	MultiPartWriterUploadCompleted
)

func (k CheckpointKind) String() string {
	switch k {
	case Empty:
		return "Empty"
	case MultiPartNotCreated:
		return "MultiPartNotCreated"
	case MultiPartInFlight:
		return "MultiPartInFlight"
	case MultiPartWriterClosed:
		return "MultiPartWriterClosed"
	case MultiPartWriterUploadCompleted:
		return "MultiPartWriterUploadCompleted"
	default:
		return fmt.Sprintf("CheckpointKind(%d)", int(k))
	}
}

// InFlightPart records one part's status at checkpoint time: either it
// finished uploading and carries the store's content id, or it was still
// buffered locally and must be re-uploaded on recovery.
type InFlightPart struct {
	Part      int
	Finished  bool
	ContentID string // valid when Finished
	Data      []byte // valid when !Finished
}

// CheckpointData is a tagged union over the five checkpoint shapes. Only the
// fields relevant to Kind are populated; see the CheckpointKind constants
// for which fields apply to which kind.
type CheckpointData struct {
	Kind CheckpointKind

	// MultiPartNotCreated
	PartsToAdd [][]byte

	// MultiPartNotCreated, MultiPartInFlight
	TrailingBytes        []byte
	TrailingBytesPresent bool

	// MultiPartInFlight, MultiPartWriterClosed, MultiPartWriterUploadCompleted
	MultipartID string

	// MultiPartInFlight, MultiPartWriterClosed
	InFlightParts []InFlightPart

	// MultiPartWriterUploadCompleted
	CompletedParts []string
}

// FileToFinish names a file whose multipart upload has every part uploaded
// and is ready to be completed with an object store's CloseMultipart.
type FileToFinish struct {
	Filename       string
	MultipartID    string
	CompletedParts []string
}

// InProgressFileCheckpoint pairs a file's checkpointed upload state with any
// input records still buffered in front of it (not yet serialized into a
// pushed part), so recovery can replay them.
type InProgressFileCheckpoint[T any] struct {
	Filename     string
	Data         CheckpointData
	BufferedData []T
}

// DataRecovery is the checkpointed state threaded across restarts: the next
// unused file index, and every file that was still open (not yet finished)
// at checkpoint time.
type DataRecovery[T any] struct {
	NextFileIndex int
	ActiveFiles   []InProgressFileCheckpoint[T]
}
