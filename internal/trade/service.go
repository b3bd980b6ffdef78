package trade

import (
	"sync"
	"time"

	"tradepost.gg/internal/inventory"
)

// Handle is a live, reachable participant as resolved by the presence layer.
type Handle interface {
	AgentID() string
	Name() string
	Containers() inventory.Containers
}

// Presence resolves an agent id to a reachable handle, or reports it absent.
type Presence interface {
	Resolve(agentID string) (Handle, bool)
}

// Proximity reports whether two reachable agents are close enough to trade.
type Proximity interface {
	WithinRange(a, b Handle) bool
}

// Messenger delivers a short text to an agent. Fire-and-forget: it must not
// block and silently no-ops when the agent is gone.
type Messenger interface {
	Notify(h Handle, text string)
}

// PageBridge drives the client-side trade UI. The transport implements it by
// pushing events; the client calls back into the Service entry points.
type PageBridge interface {
	OpenPrompt(target Handle, requesterID, requesterName string)
	OpenSession(h Handle, sessionID string)
	RefreshPage(h Handle, sessionID string)
	ClosePage(h Handle, sessionID string)
}

// Recorder receives trade lifecycle entries for the audit trail. May be nil.
type Recorder interface {
	Record(e AuditEntry)
}

type AuditEntry struct {
	Time      time.Time             `json:"time"`
	Kind      string                `json:"kind"` // REQUESTED, STARTED, DECLINED, CANCELLED, RESET, COMPLETED
	SessionID string                `json:"session_id,omitempty"`
	AgentA    string                `json:"agent_a"`
	AgentB    string                `json:"agent_b,omitempty"`
	Detail    string                `json:"detail,omitempty"`
	GaveA     []inventory.ItemStack `json:"gave_a,omitempty"` // items A delivered to B
	GaveB     []inventory.ItemStack `json:"gave_b,omitempty"` // items B delivered to A
}

// RequestError is a user-facing rejection of a trade request.
type RequestError struct {
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	return e.Code + ": " + e.Message
}

type Config struct {
	// Rate limit for outgoing trade requests per agent.
	RequestWindow time.Duration
	RequestMax    int
}

// Service coordinates trade requests, active sessions and the exchange
// commit. All mutable tables live behind one mutex: trade traffic is
// low-frequency and per-call work is bounded, and a single critical section
// removes lock-ordering hazards between the two participants of a session.
type Service struct {
	presence  Presence
	proximity Proximity
	messenger Messenger
	pages     PageBridge
	recorder  Recorder // optional
	cfg       Config
	now       func() time.Time

	mu                       sync.Mutex
	pendingByTarget          map[string]*invitation
	pendingTargetByRequester map[string]string
	sessionsByID             map[string]*session
	sessionByAgent           map[string]string
	openPageByAgent          map[string]string // agent id -> session id shown
	reqWindows               map[string]*rateWindow
}

type invitation struct {
	RequesterID   string
	TargetID      string
	RequesterName string
}

type rateWindow struct {
	Start time.Time
	Count int
}

func NewService(presence Presence, proximity Proximity, messenger Messenger, pages PageBridge, cfg Config) *Service {
	return &Service{
		presence:                 presence,
		proximity:                proximity,
		messenger:                messenger,
		pages:                    pages,
		cfg:                      cfg,
		now:                      time.Now,
		pendingByTarget:          map[string]*invitation{},
		pendingTargetByRequester: map[string]string{},
		sessionsByID:             map[string]*session{},
		sessionByAgent:           map[string]string{},
		openPageByAgent:          map[string]string{},
		reqWindows:               map[string]*rateWindow{},
	}
}

// SetRecorder attaches an audit sink. Call before serving traffic.
func (s *Service) SetRecorder(r Recorder) {
	s.recorder = r
}

func (s *Service) record(e AuditEntry) {
	if s.recorder == nil {
		return
	}
	e.Time = s.now()
	s.recorder.Record(e)
}

func (s *Service) notify(h Handle, text string) {
	if h != nil && text != "" {
		s.messenger.Notify(h, text)
	}
}

func (s *Service) resolve(agentID string) Handle {
	if agentID == "" {
		return nil
	}
	h, ok := s.presence.Resolve(agentID)
	if !ok {
		return nil
	}
	return h
}

func (s *Service) sessionForAgent(agentID string) *session {
	id, ok := s.sessionByAgent[agentID]
	if !ok {
		return nil
	}
	return s.sessionsByID[id]
}

// requestAllowed applies the per-requester rate window. Must hold s.mu.
func (s *Service) requestAllowed(agentID string) bool {
	if s.cfg.RequestMax <= 0 || s.cfg.RequestWindow <= 0 {
		return true
	}
	now := s.now()
	w := s.reqWindows[agentID]
	if w == nil || now.Sub(w.Start) >= s.cfg.RequestWindow {
		s.reqWindows[agentID] = &rateWindow{Start: now, Count: 1}
		return true
	}
	if w.Count >= s.cfg.RequestMax {
		return false
	}
	w.Count++
	return true
}

func safeName(h Handle, fallbackID string) string {
	if h != nil && h.Name() != "" {
		return h.Name()
	}
	if len(fallbackID) > 8 {
		return fallbackID[:8]
	}
	if fallbackID == "" {
		return "Unknown"
	}
	return fallbackID
}
