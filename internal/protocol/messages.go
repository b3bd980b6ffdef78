package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AgentName       string `json:"agent_name"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type             string        `json:"type"`
	ProtocolVersion  string        `json:"protocol_version"`
	AgentID          string        `json:"agent_id"`
	AgentName        string        `json:"agent_name"`
	InteractionRange int           `json:"interaction_range"`
	Sections         []SectionInfo `json:"sections"`
}

type SectionInfo struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

// ACT (client -> server): one trade action per message.
// Which fields matter depends on Action; unused fields are ignored.
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"` // client correlation id, echoed in ACTION_RESULT
	Action          string `json:"action"`

	TargetID    string `json:"target_id,omitempty"`    // REQUEST_TRADE
	RequesterID string `json:"requester_id,omitempty"` // RESPOND_REQUEST
	Accepted    bool   `json:"accepted,omitempty"`     // RESPOND_REQUEST

	Section    string `json:"section,omitempty"`     // OFFER_SLOT
	SlotIndex  int    `json:"slot_index,omitempty"`  // OFFER_SLOT
	OfferIndex int    `json:"offer_index,omitempty"` // RETRACT_OFFER

	SessionID string `json:"session_id,omitempty"` // DISMISS_PAGE, GET_TRADE

	Pos [3]int `json:"pos,omitempty"` // MOVE
}

// Event is a server -> client push. Kept schemaless so handlers can attach
// whatever fields the event kind needs (same shape the game events use).
type Event map[string]interface{}

// TradeOffer is one committed offer entry as rendered to clients.
type TradeOffer struct {
	Section   string `json:"section"`
	SlotIndex int    `json:"slot_index"`
	Item      string `json:"item"`
	Quantity  int    `json:"quantity"`
}

// TradeSnapshot is the read projection of an active trade for one
// participant. Recomputed on every request, never stored.
type TradeSnapshot struct {
	SessionID     string       `json:"session_id"`
	SelfID        string       `json:"self_id"`
	OtherID       string       `json:"other_id"`
	OtherName     string       `json:"other_name"`
	SelfAccepted  bool         `json:"self_accepted"`
	OtherAccepted bool         `json:"other_accepted"`
	SelfOffers    []TradeOffer `json:"self_offers"`
	OtherOffers   []TradeOffer `json:"other_offers"`
	// Slots of the participant's own containers currently committed to the
	// trade, as "section:index" strings, for highlighting in the client.
	SelfOfferedSlots []string `json:"self_offered_slots"`
}
