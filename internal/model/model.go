package model

import (
	"strings"
	"time"
)

// Position is the monotonic ordering key of the event log: a unix timestamp
// for the subgraph source, a block number for the rpc source.
type Position uint64

// RawEvent is a project-creation record as returned by a source.
type RawEvent struct {
	ID       string   // project id, unique per protocol version
	Creator  string   // creator address
	Locator  string   // metadata URI or CID
	Handle   string   // optional project handle (v1)
	Version  string   // protocol version tag, e.g. "1", "2"
	TxHash   string   // optional
	Position Position // ordering key
}

// Key identifies the event for dedup. Project ids are only unique within a
// protocol version, so the version is part of the key.
func (e RawEvent) Key() string {
	return e.Version + ":" + e.ID
}

// Metadata is the off-chain project descriptor. All fields are optional.
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Twitter     string `json:"twitter"`
	InfoURI     string `json:"infoUri"`
	LogoURI     string `json:"logoUri"`
}

// Empty reports whether no enrichment is available.
func (m Metadata) Empty() bool {
	return strings.TrimSpace(m.Name) == "" && strings.TrimSpace(m.Description) == "" &&
		strings.TrimSpace(m.Twitter) == ""
}

// Announcement is the rendered text for one event.
type Announcement struct {
	EventID   string
	Position  Position
	Text      string
	Width     int // weighted length
	Truncated bool
}

// Receipt is returned by a successful delivery.
type Receipt struct {
	ID   string // channel post id, may be empty for fire-and-forget sinks
	Sink string
	At   time.Time
}
