package logging

import (
	"time"

	"go.uber.org/zap"
)

// Field is a zap field; constructors below name the keys used across graphcore.
type Field = zap.Field

func String(key, value string) Field                 { return zap.String(key, value) }
func Int(key string, value int) Field                { return zap.Int(key, value) }
func Uint64(key string, value uint64) Field          { return zap.Uint64(key, value) }
func Bool(key string, value bool) Field              { return zap.Bool(key, value) }
func Duration(key string, value time.Duration) Field { return zap.Duration(key, value) }
func Any(key string, value any) Field                { return zap.Any(key, value) }

// Error carries err under "error". A nil error adds nothing.
func Error(err error) Field {
	return zap.Error(err)
}

func Component(name string) Field    { return String("component", name) }
func NodeID(id uint64) Field         { return Uint64("node_id", id) }
func RelationshipID(id uint64) Field { return Uint64("relationship_id", id) }
func TxID(id string) Field           { return String("tx_id", id) }
func Operation(op string) Field      { return String("operation", op) }
func Latency(d time.Duration) Field  { return Duration("latency", d) }
func Count(n int) Field              { return Int("count", n) }
func Path(p string) Field            { return String("path", p) }
