package badgerstore

import (
	"encoding/binary"

	"github.com/dd0wney/cluso-graphcore/pkg/storage"
)

// Key prefixes. Ids are big-endian so key order is id order.
const (
	prefixNode   = byte(0x01) // node:nodeID -> gob(nodeValue)
	prefixRel    = byte(0x02) // rel:relID -> gob(RelationshipRecord)
	prefixChain  = byte(0x03) // chain:nodeID:type:dir:relID -> empty
	prefixGroup  = byte(0x04) // group:nodeID:type:dir -> uint64 member count
	prefixToken  = byte(0x05) // token:name -> uint64 id
	prefixMeta   = byte(0x06)
	metaHighNode = "hw_node"
	metaHighRel  = "hw_rel"
)

func nodeKey(id storage.NodeID) []byte {
	return binary.BigEndian.AppendUint64([]byte{prefixNode}, uint64(id))
}

func relKey(id storage.RelationshipID) []byte {
	return binary.BigEndian.AppendUint64([]byte{prefixRel}, uint64(id))
}

// chainPrefix addresses one (node, type, direction) chain.
func chainPrefix(node storage.NodeID, key storage.ChainKey) []byte {
	k := make([]byte, 0, 1+8+4+1+8)
	k = append(k, prefixChain)
	k = binary.BigEndian.AppendUint64(k, uint64(node))
	k = binary.BigEndian.AppendUint32(k, uint32(key.Type))
	return append(k, byte(key.Direction))
}

func chainKey(m storage.ChainMember, id storage.RelationshipID) []byte {
	return binary.BigEndian.AppendUint64(chainPrefix(m.Node, m.Key), uint64(id))
}

func chainKeyID(k []byte) storage.RelationshipID {
	return storage.RelationshipID(binary.BigEndian.Uint64(k[len(k)-8:]))
}

func groupPrefix(node storage.NodeID) []byte {
	return binary.BigEndian.AppendUint64([]byte{prefixGroup}, uint64(node))
}

func groupKey(node storage.NodeID, key storage.ChainKey) []byte {
	k := binary.BigEndian.AppendUint32(groupPrefix(node), uint32(key.Type))
	return append(k, byte(key.Direction))
}

func groupKeyChain(k []byte) storage.ChainKey {
	return storage.ChainKey{
		Type:      storage.TypeID(binary.BigEndian.Uint32(k[9:13])),
		Direction: storage.Direction(k[13]),
	}
}

func tokenKey(name string) []byte {
	return append([]byte{prefixToken}, name...)
}

func metaKey(name string) []byte {
	return append([]byte{prefixMeta}, name...)
}

func encodeUint64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func decodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
