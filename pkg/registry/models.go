package registry

import (
	"encoding/json"
	"time"

	"github.com/blockd/blockd/pkg/capability"
)

// Peer is the durable record of one cluster member: the address blockd
// dials for RPC, its last negotiated capability set, and when it was
// last seen. Nothing loads this table back into the capability cache on
// restart.
type Peer struct {
	Addr         string    `gorm:"column:addr;primaryKey;size:255"`
	Version      string    `gorm:"column:version;size:64"`
	Capabilities string    `gorm:"column:capabilities;type:text"` // JSON-encoded capability.Set
	LastSeen     time.Time `gorm:"column:last_seen"`
	LastError    string    `gorm:"column:last_error;type:text"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the table name so a renamed Go type doesn't silently
// migrate to a new table.
func (Peer) TableName() string { return "peers" }

// CapabilitySet decodes the stored JSON capability blob.
func (p *Peer) CapabilitySet() (capability.Set, error) {
	if p.Capabilities == "" {
		return capability.Set{}, nil
	}
	var set capability.Set
	if err := json.Unmarshal([]byte(p.Capabilities), &set); err != nil {
		return nil, err
	}
	return set, nil
}

// SetCapabilitySet encodes set as the stored JSON capability blob.
func (p *Peer) SetCapabilitySet(set capability.Set) error {
	data, err := json.Marshal(set)
	if err != nil {
		return err
	}
	p.Capabilities = string(data)
	return nil
}
