package badger

import (
	"encoding/binary"
	"fmt"
)

const (
	docVectorPrefix  = "docvec"
	seqEmbedPrefix   = "seqemb"
	lexicalPrefix    = "lexsnap"
	checkpointSuffix = "chkpt"
)

func makeDocVectorKey(fileID int64) []byte {
	prefix := docVectorPrefix + ":"
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// BigEndian keeps iteration in file id order
	binary.BigEndian.PutUint64(buf[offset:], uint64(fileID))
	return buf
}

func docVectorPrefixKey() []byte {
	return []byte(docVectorPrefix + ":")
}

func fileIDFromDocVectorKey(key []byte) (int64, error) {
	prefix := len(docVectorPrefix) + 1
	if len(key) != prefix+8 {
		return 0, fmt.Errorf("malformed document vector key %q", key)
	}
	return int64(binary.BigEndian.Uint64(key[prefix:])), nil
}

func makeSeqEmbeddingKey(contentKey string) []byte {
	return []byte(seqEmbedPrefix + ":" + contentKey)
}

func makeLexicalKey(fingerprint string) []byte {
	return []byte(lexicalPrefix + ":" + fingerprint)
}

func makeCheckpointKey(processorType string) []byte {
	return []byte(fmt.Sprintf("%s:%s", processorType, checkpointSuffix))
}
