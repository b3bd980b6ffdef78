package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeAct     = "ACT"
)

// Server -> client events carry their kind directly in the "type" field.

// Trade action kinds carried in an ACT message.
const (
	ActRequestTrade   = "REQUEST_TRADE"
	ActRespondRequest = "RESPOND_REQUEST"
	ActOfferSlot      = "OFFER_SLOT"
	ActRetractOffer   = "RETRACT_OFFER"
	ActAcceptTrade    = "ACCEPT_TRADE"
	ActDeclineTrade   = "DECLINE_TRADE"
	ActDismissPage    = "DISMISS_PAGE"
	ActGetTrade       = "GET_TRADE"
	ActMove           = "MOVE"
)

// Server event kinds.
const (
	EvTradePrompt  = "TRADE_PROMPT"
	EvTradeOpen    = "TRADE_OPEN"
	EvTradeRefresh = "TRADE_REFRESH"
	EvTradeClose   = "TRADE_CLOSE"
	EvMessage      = "MESSAGE"
	EvActionResult = "ACTION_RESULT"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
