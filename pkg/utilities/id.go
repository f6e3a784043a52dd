package utilities

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// IDGenerator hands out snowflake ids for entity rows.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator builds a generator for the given node id (0..1023).
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &IDGenerator{node: node}, nil
}

// NodeIDFromEnv reads SNOWFLAKE_NODE, defaulting to node 1 when unset or
// unparsable so ids are still produced.
func NodeIDFromEnv() int64 {
	nodeID, err := strconv.ParseInt(os.Getenv("SNOWFLAKE_NODE"), 10, 64)
	if err != nil {
		return 1
	}
	return nodeID
}

// Next returns a new id.
func (g *IDGenerator) Next() int64 {
	return g.node.Generate().Int64()
}

const codeDigits = 16

var (
	codeMin   = new(big.Int).Exp(big.NewInt(10), big.NewInt(codeDigits-1), nil) // 10^15
	codeRange = new(big.Int).Sub(new(big.Int).Exp(big.NewInt(10), big.NewInt(codeDigits), nil), codeMin)
)

// NewCodeValue returns a uniformly random 16-digit decimal string without a
// leading zero.
func NewCodeValue() (string, error) {
	n, err := rand.Int(rand.Reader, codeRange)
	if err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return n.Add(n, codeMin).String(), nil
}

// IsCodeValue reports whether s has the shape produced by NewCodeValue.
func IsCodeValue(s string) bool {
	if len(s) != codeDigits || s[0] == '0' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
