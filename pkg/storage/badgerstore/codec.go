package badgerstore

import (
	"bytes"
	"encoding/gob"

	"github.com/dd0wney/cluso-graphcore/pkg/storage"
)

// nodeValue is the stored form of a node; the id lives in the key.
type nodeValue struct {
	Properties map[string]storage.Value
}

// encodeNode serializes node properties using gob (keeps Value types intact).
func encodeNode(props map[string]storage.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(nodeValue{Properties: props}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeNode(data []byte) (map[string]storage.Value, error) {
	var v nodeValue
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return nil, err
	}
	if v.Properties == nil {
		v.Properties = make(map[string]storage.Value)
	}
	return v.Properties, nil
}

func encodeRelationship(rec *storage.RelationshipRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRelationship(data []byte) (*storage.RelationshipRecord, error) {
	var rec storage.RelationshipRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, err
	}
	if rec.Properties == nil {
		rec.Properties = make(map[string]storage.Value)
	}
	return &rec, nil
}
