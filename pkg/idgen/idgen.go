// Package idgen generates random ids: short prefixed ids for change records
// and graph mutations (crypto/rand with a timestamp fallback) and UUIDs for
// connector registrations. It issues no sequence ids; audit and approval
// row ids are assigned by the database.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewChangeID returns a new change record id.
func NewChangeID() string {
	return "chg_" + shortRandom()
}

// NewConnectorID returns a new connector registration id.
func NewConnectorID() string {
	return uuid.NewString()
}

// NewMutationID returns a correlation id for a single graph mutation
// produced by a connector sync pass.
func NewMutationID() string {
	return "mut_" + shortRandom()
}

func shortRandom() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
