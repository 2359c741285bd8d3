package config

import (
	"fmt"
	"strconv"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GRAPHCORE_"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides fields from the environment, for example
// GRAPHCORE_CACHE_GRAB_SIZE=50 or GRAPHCORE_TOKENS_MODE=replica.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	strs := map[string]*string{
		"DATA_DIR":            &c.DataDir,
		"STORE_BACKEND":       &c.Store.Backend,
		"TOKENS_MODE":         &c.Tokens.Mode,
		"TOKENS_PRIMARY_ADDR": &c.Tokens.PrimaryAddr,
		"TOKENS_LISTEN_ADDR":  &c.Tokens.ListenAddr,
		"LOG_LEVEL":           &c.Logging.Level,
		"LOG_FORMAT":          &c.Logging.Format,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CACHE_GRAB_SIZE":             &c.Cache.GrabSize,
		"CACHE_NODE_CAPACITY":         &c.Cache.NodeCapacity,
		"CACHE_RELATIONSHIP_CAPACITY": &c.Cache.RelationshipCapacity,
	}
	for key, dst := range ints {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"STORE_SYNC_WRITES": &c.Store.SyncWrites,
		"STORE_IN_MEMORY":   &c.Store.InMemory,
	}
	for key, dst := range bools {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = b
		}
	}

	if v, ok := lookup(EnvPrefix + "TOKENS_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sTOKENS_TIMEOUT: %w", EnvPrefix, err)
		}
		c.Tokens.Timeout = d
	}
	return nil
}
