// Package sink drives the per-subtask write path: a single cooperative
// actor multiplexes incoming records, checkpoint requests, and completed
// uploads, and a facade exposes that actor's lifecycle as the two-phase
// commit operations a dataflow engine expects.
package sink

import (
	"time"

	"github.com/gurre/filesystemsink/multipart"
)

// MessageKind discriminates the four message shapes the actor accepts.
type MessageKind int

const (
	// MsgData carries one input record to append to the current file.
	MsgData MessageKind = iota
	// MsgInit (re)initializes the actor with the next unused file index,
	// this subtask's id, and any files recovered from a prior checkpoint.
	MsgInit
	// MsgCheckpoint asks the actor to snapshot its current state.
	MsgCheckpoint
	// MsgFilesToFinish asks the actor to complete a set of multipart
	// uploads that a prior checkpoint cycle already finished uploading.
	MsgFilesToFinish
)

// Message is the tagged union the actor's inbound channel carries. Only the
// fields relevant to Kind are populated.
type Message[T any] struct {
	Kind MessageKind

	// MsgData
	Value T
	Time  time.Time

	// MsgInit
	MaxFileIndex   int
	SubtaskID      int
	RecoveredFiles []multipart.InProgressFileCheckpoint[T]

	// MsgCheckpoint
	ThenStop bool

	// MsgFilesToFinish
	Files []multipart.FileToFinish
}

// DataMessage builds a MsgData message.
func DataMessage[T any](value T, at time.Time) Message[T] {
	return Message[T]{Kind: MsgData, Value: value, Time: at}
}

// InitMessage builds a MsgInit message.
func InitMessage[T any](maxFileIndex, subtaskID int, recoveredFiles []multipart.InProgressFileCheckpoint[T]) Message[T] {
	return Message[T]{Kind: MsgInit, MaxFileIndex: maxFileIndex, SubtaskID: subtaskID, RecoveredFiles: recoveredFiles}
}

// CheckpointMessage builds a MsgCheckpoint message.
func CheckpointMessage[T any](subtaskID int, thenStop bool) Message[T] {
	return Message[T]{Kind: MsgCheckpoint, SubtaskID: subtaskID, ThenStop: thenStop}
}

// FilesToFinishMessage builds a MsgFilesToFinish message.
func FilesToFinishMessage[T any](files []multipart.FileToFinish) Message[T] {
	return Message[T]{Kind: MsgFilesToFinish, Files: files}
}

// CheckpointReport is what the actor emits on its checkpoint channel: either
// one file's in-progress state, or a terminal Finished report carrying the
// max file index reached so far.
type CheckpointReport[T any] struct {
	Finished     bool
	MaxFileIndex int
	InProgress   multipart.InProgressFileCheckpoint[T]
}
