package storage

import (
	"encoding/json"
	"fmt"
)

// EncodeCheckpoint serializes a checkpoint record for storage
func EncodeCheckpoint(rec CheckpointRecord) ([]byte, error) {
	return json.Marshal(rec)
}

// DecodeCheckpoint deserializes a stored checkpoint record
func DecodeCheckpoint(data []byte) (CheckpointRecord, error) {
	var rec CheckpointRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return CheckpointRecord{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	return rec, nil
}
