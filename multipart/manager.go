package multipart

import "fmt"

// RequestKind discriminates the two asynchronous operations a Manager asks
// its caller to perform.
type RequestKind int

const (
	// RequestInitializeMultipart asks the caller to start a new multipart
	// upload and report the resulting id back via HandleInitialized.
	RequestInitializeMultipart RequestKind = iota
	// RequestUploadPart asks the caller to upload PartIndex/Data and report
	// the resulting content id back via HandleCompletedPart.
	RequestUploadPart
)

// Request describes one asynchronous object-store operation the Manager
// needs performed on its behalf. The Manager never performs I/O itself; it
// only decides what needs to happen and records the bookkeeping once the
// caller reports a result.
type Request struct {
	Kind      RequestKind
	PartIndex int
	Data      []byte
}

type pushedPart struct {
	finished  bool
	contentID string
	data      []byte
}

type partToUpload struct {
	index int
	data  []byte
}

// Manager tracks one file's multipart upload lifecycle: which parts are
// buffered locally awaiting a multipart id, which have been handed off for
// upload, and which have finished. It never touches an object store
// directly; WriteNextPart and HandleInitialized return Requests that the
// caller executes, feeding results back through HandleInitialized and
// HandleCompletedPart.
type Manager struct {
	location string

	multipartID    string
	hasMultipartID bool

	pushedParts   []pushedPart
	uploadedCount int

	partsToAdd []partToUpload

	closed      bool
	everWritten bool
}

// NewManager creates a Manager for the file at location.
func NewManager(location string) *Manager {
	return &Manager{location: location}
}

// Name returns the file location this Manager is writing.
func (m *Manager) Name() string { return m.location }

// Closed reports whether Close has been called.
func (m *Manager) Closed() bool { return m.closed }

// MultipartID returns the upload id assigned by HandleInitialized, if the
// upload has been started yet.
func (m *Manager) MultipartID() (string, bool) { return m.multipartID, m.hasMultipartID }

// WriteNextPart records a new part of data to be uploaded, returning the
// request to perform, if any. The first part written always requires
// starting a multipart upload: that part is buffered in partsToAdd and
// re-requested once HandleInitialized reports the multipart id. Every part
// after the multipart upload exists is requested directly.
func (m *Manager) WriteNextPart(data []byte) *Request {
	m.everWritten = true
	if m.hasMultipartID {
		req := m.uploadRequest(partToUpload{index: len(m.pushedParts), data: data})
		return &req
	}

	isFirstPart := len(m.partsToAdd) == 0
	m.partsToAdd = append(m.partsToAdd, partToUpload{index: len(m.partsToAdd), data: data})
	if !isFirstPart {
		return nil
	}
	return &Request{Kind: RequestInitializeMultipart}
}

// uploadRequest records the part as pushed (but not yet uploaded) and
// builds the Request describing its upload.
func (m *Manager) uploadRequest(p partToUpload) Request {
	m.pushedParts = append(m.pushedParts, pushedPart{data: p.data})
	return Request{Kind: RequestUploadPart, PartIndex: p.index, Data: p.data}
}

// HandleInitialized records the multipart id returned by starting the
// upload and returns the upload requests for every part that was buffered
// waiting on it, in index order.
func (m *Manager) HandleInitialized(multipartID string) []Request {
	m.multipartID = multipartID
	m.hasMultipartID = true

	pending := m.partsToAdd
	m.partsToAdd = nil

	requests := make([]Request, 0, len(pending))
	for _, p := range pending {
		requests = append(requests, m.uploadRequest(p))
	}
	return requests
}

// HandleCompletedPart records that partIdx finished uploading with the
// given content id. If that was the last outstanding part on a closed
// writer, it returns the FileToFinish ready for CloseMultipart.
func (m *Manager) HandleCompletedPart(partIdx int, contentID string) (*FileToFinish, error) {
	if partIdx < 0 || partIdx >= len(m.pushedParts) {
		return nil, fmt.Errorf("multipart: completed part index %d out of range for %s (have %d pushed parts)", partIdx, m.location, len(m.pushedParts))
	}
	m.pushedParts[partIdx] = pushedPart{finished: true, contentID: contentID}
	m.uploadedCount++

	if !m.allUploadsFinished() {
		return nil, nil
	}
	completed, err := m.completedContentIDs()
	if err != nil {
		return nil, err
	}
	return &FileToFinish{
		Filename:       m.Name(),
		MultipartID:    m.multipartID,
		CompletedParts: completed,
	}, nil
}

func (m *Manager) allUploadsFinished() bool {
	// hasMultipartID guards against vacuous truth: a file that was opened
	// but never written to has zero pushed parts and zero uploaded parts,
	// which trivially satisfies uploadedCount == len(pushedParts) even
	// though no multipart upload (and therefore nothing to finish) exists.
	return m.closed && m.hasMultipartID && m.uploadedCount == len(m.pushedParts)
}

// AllUploadsFinished reports whether the writer is closed and every pushed
// part has finished uploading, i.e. the file is ready to be finished.
func (m *Manager) AllUploadsFinished() bool {
	return m.allUploadsFinished()
}

func (m *Manager) completedContentIDs() ([]string, error) {
	out := make([]string, len(m.pushedParts))
	for i, p := range m.pushedParts {
		if !p.finished {
			return nil, fmt.Errorf("multipart: part %d for %s has not finished uploading", i, m.location)
		}
		out[i] = p.contentID
	}
	return out, nil
}

func (m *Manager) partsToAddBytes() [][]byte {
	out := make([][]byte, len(m.partsToAdd))
	for i, p := range m.partsToAdd {
		out[i] = p.data
	}
	return out
}

func (m *Manager) inFlightParts() []InFlightPart {
	out := make([]InFlightPart, len(m.pushedParts))
	for i, p := range m.pushedParts {
		out[i] = InFlightPart{Part: i, Finished: p.finished, ContentID: p.contentID, Data: p.data}
	}
	return out
}

// Close marks the writer side of this file closed. The owning writer may
// still hand over the final flushed part via WriteNextPart, and in-flight
// uploads may still complete.
func (m *Manager) Close() { m.closed = true }

// ClosedCheckpointData projects the current state into a CheckpointData
// variant appropriate for a closed writer. It is an error to call this
// before Close.
func (m *Manager) ClosedCheckpointData() (CheckpointData, error) {
	if !m.closed {
		return CheckpointData{}, fmt.Errorf("multipart: ClosedCheckpointData called on open file %s", m.location)
	}
	if !m.hasMultipartID {
		if !m.everWritten {
			return CheckpointData{Kind: Empty}, nil
		}
		return CheckpointData{Kind: MultiPartNotCreated, PartsToAdd: m.partsToAddBytes()}, nil
	}
	if m.allUploadsFinished() {
		completed, err := m.completedContentIDs()
		if err != nil {
			return CheckpointData{}, err
		}
		return CheckpointData{
			Kind:           MultiPartWriterUploadCompleted,
			MultipartID:    m.multipartID,
			CompletedParts: completed,
		}, nil
	}
	return CheckpointData{
		Kind:          MultiPartWriterClosed,
		MultipartID:   m.multipartID,
		InFlightParts: m.inFlightParts(),
	}, nil
}

// InProgressCheckpointData projects the current state into a CheckpointData
// variant appropriate for a still-open writer, attaching trailing (not yet
// evicted) buffer bytes reported by the encoder. It is an error to call
// this after Close.
func (m *Manager) InProgressCheckpointData(trailing []byte, trailingPresent bool) (CheckpointData, error) {
	if m.closed {
		return CheckpointData{}, fmt.Errorf("multipart: InProgressCheckpointData called on closed file %s", m.location)
	}
	if !m.hasMultipartID {
		return CheckpointData{
			Kind:                 MultiPartNotCreated,
			PartsToAdd:           m.partsToAddBytes(),
			TrailingBytes:        trailing,
			TrailingBytesPresent: trailingPresent,
		}, nil
	}
	return CheckpointData{
		Kind:                 MultiPartInFlight,
		MultipartID:          m.multipartID,
		InFlightParts:        m.inFlightParts(),
		TrailingBytes:        trailing,
		TrailingBytesPresent: trailingPresent,
	}, nil
}

// FinishedFile returns the FileToFinish for a closed, fully-uploaded file.
// It is an error to call this before every part has finished uploading, and
// on a file that never started a multipart upload.
func (m *Manager) FinishedFile() (FileToFinish, error) {
	if !m.closed {
		return FileToFinish{}, fmt.Errorf("multipart: FinishedFile called on open file %s", m.location)
	}
	if !m.allUploadsFinished() {
		return FileToFinish{}, fmt.Errorf("multipart: FinishedFile called on %s before every part finished uploading", m.location)
	}
	completed, err := m.completedContentIDs()
	if err != nil {
		return FileToFinish{}, err
	}
	return FileToFinish{
		Filename:       m.Name(),
		MultipartID:    m.multipartID,
		CompletedParts: completed,
	}, nil
}
