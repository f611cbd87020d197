package id

import (
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a new globally unique int64 ID using the Snowflake algorithm.
// IDs are time-ordered, so conversations, messages and turns sort by creation.
// Falls back to node 0 when Init was never called (tests, the CLI).
func New() int64 {
	_ = Init(0)
	return node.Generate().Int64()
}

// NewString returns a new ID in decimal form, used for message ids on the wire.
func NewString() string {
	return strconv.FormatInt(New(), 10)
}

// Parse converts a decimal ID taken from a URL or payload.
func Parse(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
