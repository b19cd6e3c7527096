// Package idgen hands out snowflake IDs for catalog rows. Entities,
// federations and stat samples all share one process-wide node.
package idgen

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Initialize binds the generator to a node ID. Only the first call
// takes effect.
func Initialize(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// GenerateID returns a fresh ID as a string. Callers that skipped
// Initialize (tests, mostly) get node 1.
func GenerateID() string {
	if node == nil {
		_ = Initialize(1)
	}
	return node.Generate().String()
}
