package models

import "time"

// Stream типы потоков синхронизации
type Stream string

// Потоки синхронизации. Users и Collaborations глобальные, остальные привязаны к корню.
const (
	StreamUsers            Stream = "users"
	StreamCollaborations   Stream = "collaborations"
	StreamNodes            Stream = "nodes"
	StreamNodeInteractions Stream = "nodeInteractions"
	StreamNodeReactions    Stream = "nodeReactions"
	StreamNodeTombstones   Stream = "nodeTombstones"
	StreamFiles            Stream = "files"
	StreamDocumentUpdates  Stream = "documentUpdates"
)

// RootStreams lists the streams synchronized for every collaboration root.
var RootStreams = []Stream{
	StreamNodes,
	StreamNodeInteractions,
	StreamNodeReactions,
	StreamNodeTombstones,
	StreamFiles,
	StreamDocumentUpdates,
}

// GlobalStreams lists the root-independent streams.
var GlobalStreams = []Stream{StreamUsers, StreamCollaborations}

// IsGlobal reports whether the stream is root-independent.
func (s Stream) IsGlobal() bool {
	return s == StreamUsers || s == StreamCollaborations
}

// Valid reports whether the stream is known.
func (s Stream) Valid() bool {
	if s.IsGlobal() {
		return true
	}
	for _, rs := range RootStreams {
		if rs == s {
			return true
		}
	}
	return false
}

// StreamKey returns the cursor key for a stream: "{rootId}_{stream}" for
// root streams and the bare stream name for global ones.
func StreamKey(stream Stream, rootID string) string {
	if stream.IsGlobal() || rootID == "" {
		return string(stream)
	}
	return rootID + "_" + string(stream)
}

// SyncCursor водяной знак последней применённой позиции потока
type SyncCursor struct {
	UpdatedAt time.Time `json:"updated_at"`
	StreamKey string    `json:"stream_key"`
	Position  int64     `json:"position"`
}
