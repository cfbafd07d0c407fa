package signal

import (
	"time"
)

// PlatformDigest is one platform's compact contribution to a snapshot.
type PlatformDigest struct {
	Platform  string `json:"platform"`
	Scope     string `json:"scope"`
	Summary   string `json:"summary"`
	ItemCount int    `json:"item_count"`
}

// Omission flags a platform that could not be read this round.
type Omission struct {
	Platform string `json:"platform"`
	Reason   string `json:"reason"`
}

// Summary is the ephemeral snapshot handed to the reasoner. It is never
// persisted; only the actions derived from it leave the pipeline.
type Summary struct {
	UserID     string
	Window     time.Duration
	CapturedAt time.Time
	Digests    []PlatformDigest
	Omissions  []Omission
	TotalItems int
}

// Empty reports whether the snapshot carries no readable content at all.
func (s Summary) Empty() bool {
	return s.TotalItems == 0
}
