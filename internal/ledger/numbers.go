package ledger

import (
	"strconv"

	"github.com/bwmarrin/snowflake"
)

// NumberGenerator allocates external account numbers.
type NumberGenerator interface {
	Next() string
}

// SnowflakeNumbers hands out time-ordered numeric account numbers.
type SnowflakeNumbers struct {
	node *snowflake.Node
}

// NewSnowflakeNumbers creates a generator for the given node id (0-1023).
// Every running instance must use a distinct node id.
func NewSnowflakeNumbers(nodeID int64) (*SnowflakeNumbers, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}

	return &SnowflakeNumbers{node: node}, nil
}

func (g *SnowflakeNumbers) Next() string {
	return strconv.FormatInt(g.node.Generate().Int64(), 10)
}
