package wire

// Message type constants for the persistent room session.
const (
	// Server -> client
	TypeSetSiteID          = "setSiteId"
	TypeSiteDisconnected   = "siteDisconnected"
	TypeHeartbit           = "heartbit"
	TypeCompactionRequired = "compactionRequired"

	// Both directions
	TypeCrdtEvents   = "crdtEvents"
	TypeSitePresence = "sitePresence"
)

// Envelope is decoded first to recover Type before dispatching to the
// concrete message struct.
type Envelope struct {
	Type string `json:"type"`
}

// SetSiteID is sent once, immediately after a session is opened, telling
// the client which siteId it has been assigned.
type SetSiteID struct {
	Type   string `json:"type"`
	SiteID int64  `json:"siteId"`
}

func NewSetSiteID(siteID int64) SetSiteID {
	return SetSiteID{Type: TypeSetSiteID, SiteID: siteID}
}

// CrdtEvents carries a batch of Operations, in either direction.
type CrdtEvents struct {
	Type   string `json:"type"`
	Events []Op   `json:"events"`
}

func NewCrdtEvents(events []Op) CrdtEvents {
	return CrdtEvents{Type: TypeCrdtEvents, Events: events}
}

// SitePresence announces or updates a site's display name and visibility.
type SitePresence struct {
	Type    string `json:"type"`
	SiteID  int64  `json:"siteId"`
	Name    string `json:"name"`
	Visible bool   `json:"visible"`
}

func NewSitePresence(siteID int64, name string, visible bool) SitePresence {
	return SitePresence{Type: TypeSitePresence, SiteID: siteID, Name: name, Visible: visible}
}

// SiteDisconnected tells remaining sessions that a site has left the room.
type SiteDisconnected struct {
	Type   string `json:"type"`
	SiteID int64  `json:"siteId"`
}

func NewSiteDisconnected(siteID int64) SiteDisconnected {
	return SiteDisconnected{Type: TypeSiteDisconnected, SiteID: siteID}
}

// Heartbit is the periodic keep-alive sent to every Active session.
type Heartbit struct {
	Type string `json:"type"`
}

func NewHeartbit() Heartbit {
	return Heartbit{Type: TypeHeartbit}
}

// CompactionRequired tells the client the room is about to be rebuilt;
// the client should treat this like a disconnect with a distinct banner.
type CompactionRequired struct {
	Type string `json:"type"`
}

func NewCompactionRequired() CompactionRequired {
	return CompactionRequired{Type: TypeCompactionRequired}
}
