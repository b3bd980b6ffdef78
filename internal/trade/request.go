package trade

import (
	"github.com/google/uuid"

	"tradepost.gg/internal/protocol"
)

// RequestTrade records a trade invitation from requester to target. A nil
// return means the invitation is live, both parties were notified and the
// target was shown a prompt. A *RequestError return mutates no state.
func (s *Service) RequestTrade(requesterID, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if requesterID == "" || targetID == "" || requesterID == targetID {
		return &RequestError{Code: protocol.ErrInvalidTarget, Message: "Invalid trade target."}
	}
	requester := s.resolve(requesterID)
	target := s.resolve(targetID)
	if requester == nil || target == nil {
		return &RequestError{Code: protocol.ErrTargetUnreachable, Message: "That player is offline."}
	}
	if !s.requestAllowed(requesterID) {
		return &RequestError{Code: protocol.ErrRateLimit, Message: "Too many trade requests. Slow down."}
	}
	if !s.proximity.WithinRange(requester, target) {
		return &RequestError{Code: protocol.ErrOutOfRange, Message: "You must be closer to that player to trade."}
	}
	if s.sessionByAgent[requesterID] != "" || s.sessionByAgent[targetID] != "" {
		return &RequestError{Code: protocol.ErrAlreadyInSession, Message: "One of those players is already in a trade."}
	}

	if pendingTarget, ok := s.pendingTargetByRequester[requesterID]; ok {
		if pendingTarget == targetID {
			return &RequestError{Code: protocol.ErrDuplicateRequest, Message: "Trade request already sent."}
		}
		return &RequestError{Code: protocol.ErrRequesterBusy, Message: "You already have a pending trade request."}
	}
	if existing := s.pendingByTarget[targetID]; existing != nil && existing.RequesterID != requesterID {
		return &RequestError{Code: protocol.ErrTargetBusy, Message: "That player already has a pending trade request."}
	}

	requesterName := safeName(requester, requesterID)
	targetName := safeName(target, targetID)
	s.pendingByTarget[targetID] = &invitation{
		RequesterID:   requesterID,
		TargetID:      targetID,
		RequesterName: requesterName,
	}
	s.pendingTargetByRequester[requesterID] = targetID

	s.notify(requester, "Attempting to trade with "+targetName+"...")
	s.notify(target, requesterName+" wishes to trade with you.")
	s.pages.OpenPrompt(target, requesterID, requesterName)
	s.record(AuditEntry{Kind: "REQUESTED", AgentA: requesterID, AgentB: targetID})
	return nil
}

// RespondToRequest resolves a pending invitation. The invitation is cleared
// regardless of outcome; a session is created only when both parties are
// still reachable, unengaged and within range, since all of that may have
// changed between invitation and response.
func (s *Service) RespondToRequest(targetID, requesterID string, accepted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.pendingByTarget[targetID]
	if pending == nil || pending.RequesterID != requesterID {
		return
	}
	delete(s.pendingByTarget, targetID)
	delete(s.pendingTargetByRequester, requesterID)

	target := s.resolve(targetID)
	requester := s.resolve(requesterID)
	if !accepted {
		s.notify(requester, safeName(target, targetID)+" has declined the trade request.")
		s.record(AuditEntry{Kind: "DECLINED", AgentA: requesterID, AgentB: targetID})
		return
	}

	if target == nil || requester == nil {
		s.notify(target, "Trade failed: the other player is no longer online.")
		s.notify(requester, "Trade failed: the other player is no longer online.")
		return
	}
	if s.sessionByAgent[requesterID] != "" || s.sessionByAgent[targetID] != "" {
		s.notify(target, "Trade failed: one player is already in an active trade.")
		s.notify(requester, "Trade failed: one player is already in an active trade.")
		return
	}
	if !s.proximity.WithinRange(requester, target) {
		s.notify(target, "Trade failed: players are too far apart.")
		s.notify(requester, "Trade failed: players are too far apart.")
		return
	}

	ss := newSession(uuid.NewString(), requesterID, targetID)
	s.sessionsByID[ss.id] = ss
	s.sessionByAgent[requesterID] = ss.id
	s.sessionByAgent[targetID] = ss.id

	s.notify(requester, "Trade started with "+safeName(target, targetID)+".")
	s.notify(target, "Trade started with "+safeName(requester, requesterID)+".")
	s.pages.OpenSession(requester, ss.id)
	s.pages.OpenSession(target, ss.id)
	s.record(AuditEntry{Kind: "STARTED", SessionID: ss.id, AgentA: requesterID, AgentB: targetID})
}

// HandleDisconnect withdraws the agent's invitations in both directions and
// cancels any active session. Reconnecting does not resurrect either.
func (s *Service) HandleDisconnect(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.reqWindows, agentID)

	if pendingTarget, ok := s.pendingTargetByRequester[agentID]; ok {
		delete(s.pendingTargetByRequester, agentID)
		if pending := s.pendingByTarget[pendingTarget]; pending != nil && pending.RequesterID == agentID {
			delete(s.pendingByTarget, pendingTarget)
			s.notify(s.resolve(pendingTarget), "Trade request cancelled.")
		}
	}

	if pending := s.pendingByTarget[agentID]; pending != nil {
		delete(s.pendingByTarget, agentID)
		delete(s.pendingTargetByRequester, pending.RequesterID)
		s.notify(s.resolve(pending.RequesterID), "Trade request failed: player disconnected.")
	}

	if ss := s.sessionForAgent(agentID); ss != nil {
		s.cancelSession(ss, "Trade cancelled: other player disconnected.")
	}
	delete(s.openPageByAgent, agentID)
}
