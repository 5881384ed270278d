package infra

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// NewIDNode returns the snowflake node used for time-ordered ids. Every
// running instance needs its own node number.
func NewIDNode(node int64) (*snowflake.Node, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", node, err)
	}
	return n, nil
}
