package badger

import (
	"encoding/binary"
	"time"

	"github.com/poiesic/thinkdocs/core"
)

// Key prefixes for different data types. Components are separated by a NUL
// byte so string IDs can never collide with a neighbouring prefix.
const (
	documentPrefix       = "doc\x00"
	documentUploadPrefix = "docup\x00"
	jobPrefix            = "job\x00"
	jobCreatedPrefix     = "jobcr\x00"
	chunkPrefix          = "chunk\x00"
	vectorPrefix         = "vec\x00"
	vectorDocPrefix      = "vecdoc\x00"
)

func makeDocumentKey(id string) []byte {
	return []byte(documentPrefix + id)
}

// makeDocumentUploadKey generates a composite key for the upload time index.
// Format: prefix|timestamp|id
func makeDocumentUploadKey(uploadedAt time.Time, id string) []byte {
	buf := make([]byte, 0, len(documentUploadPrefix)+8+len(id))
	buf = append(buf, documentUploadPrefix...)
	// BigEndian so lexicographic order matches time order
	buf = binary.BigEndian.AppendUint64(buf, uint64(uploadedAt.UnixMicro()))
	return append(buf, id...)
}

// uploadKeyTime extracts the timestamp from an upload index key.
func uploadKeyTime(key []byte) time.Time {
	offset := len(documentUploadPrefix)
	return time.UnixMicro(int64(binary.BigEndian.Uint64(key[offset : offset+8]))).UTC()
}

func makeJobKey(taskID string) []byte {
	return []byte(jobPrefix + taskID)
}

// makeJobCreatedKey generates a composite key for the job creation index.
// Format: prefix|timestamp|taskID
func makeJobCreatedKey(createdAt time.Time, taskID string) []byte {
	buf := make([]byte, 0, len(jobCreatedPrefix)+8+len(taskID))
	buf = append(buf, jobCreatedPrefix...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(createdAt.UnixMicro()))
	return append(buf, taskID...)
}

// makeChunkPrefix generates the prefix shared by all chunks of a document.
// Format: prefix|documentID|NUL
func makeChunkPrefix(documentID string) []byte {
	buf := make([]byte, 0, len(chunkPrefix)+len(documentID)+1)
	buf = append(buf, chunkPrefix...)
	buf = append(buf, documentID...)
	return append(buf, 0)
}

// makeChunkKey generates a key ordered by chunk index within a document.
func makeChunkKey(documentID string, index int) []byte {
	return binary.BigEndian.AppendUint64(makeChunkPrefix(documentID), uint64(index))
}

func makeVectorKey(id core.ID) []byte {
	return binary.BigEndian.AppendUint64([]byte(vectorPrefix), uint64(id))
}

// makeVectorDocPrefix generates the prefix of a document's vector index entries.
func makeVectorDocPrefix(documentID string) []byte {
	buf := make([]byte, 0, len(vectorDocPrefix)+len(documentID)+1)
	buf = append(buf, vectorDocPrefix...)
	buf = append(buf, documentID...)
	return append(buf, 0)
}

func makeVectorDocKey(documentID string, id core.ID) []byte {
	return binary.BigEndian.AppendUint64(makeVectorDocPrefix(documentID), uint64(id))
}

// vectorDocKeyID extracts the record ID from a vector index key.
func vectorDocKeyID(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}
