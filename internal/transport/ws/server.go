package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tradepost.gg/internal/inventory"
	"tradepost.gg/internal/presence"
	"tradepost.gg/internal/protocol"
	"tradepost.gg/internal/trade"
	"tradepost.gg/internal/tuning"
)

type Server struct {
	roster  *presence.Roster
	service *trade.Service
	cfg     tuning.Tuning
	log     *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(roster *presence.Roster, service *trade.Service, cfg tuning.Tuning, logger *log.Logger) *Server {
	return &Server{
		roster:  roster,
		service: service,
		cfg:     cfg,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		agentID, out := s.handshake(conn)
		if agentID == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeAct {
				continue
			}
			var act protocol.ActMsg
			if err := json.Unmarshal(msg, &act); err != nil {
				continue
			}
			if act.ProtocolVersion != protocol.Version {
				continue
			}
			s.dispatch(agentID, act)
		}

		// Cleanup. Remove from the roster first so the disconnect sweep
		// sees this agent as unreachable.
		s.roster.Leave(agentID)
		s.service.HandleDisconnect(agentID)
		s.log.Printf("disconnect agent_id=%s", agentID)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (agentID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}
	if hello.AgentName == "" {
		hello.AgentName = "agent"
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 16
	}
	if maxQ > 128 {
		maxQ = 128
	}
	out = make(chan []byte, maxQ)

	inv := s.newInventory()
	m := s.roster.Join(hello.AgentName, inv, out)

	welcome := protocol.WelcomeMsg{
		Type:             protocol.TypeWelcome,
		ProtocolVersion:  protocol.Version,
		AgentID:          m.AgentID(),
		AgentName:        hello.AgentName,
		InteractionRange: s.cfg.InteractionRange,
	}
	for _, name := range inv.SectionNames() {
		welcome.Sections = append(welcome.Sections, protocol.SectionInfo{Name: name, Capacity: inv.Capacity(name)})
	}
	if err := writeJSON(conn, welcome); err != nil {
		s.roster.Leave(m.AgentID())
		return "", nil
	}
	s.log.Printf("join agent_id=%s name=%s", m.AgentID(), hello.AgentName)
	return m.AgentID(), out
}

func (s *Server) newInventory() *inventory.Inventory {
	ic := s.cfg.Inventory
	inv := inventory.New(ic.BackpackSlots, ic.StorageSlots, ic.HotbarSlots, ic.StackLimit)
	for item, qty := range s.cfg.StarterItems {
		inv.InsertBestEffort(inventory.ItemStack{Item: item, Quantity: qty})
	}
	return inv
}

func (s *Server) dispatch(agentID string, act protocol.ActMsg) {
	switch act.Action {
	case protocol.ActRequestTrade:
		err := s.service.RequestTrade(agentID, act.TargetID)
		s.pushResult(agentID, act.ID, err)
	case protocol.ActRespondRequest:
		s.service.RespondToRequest(agentID, act.RequesterID, act.Accepted)
	case protocol.ActOfferSlot:
		s.service.HandleInventorySlotClick(agentID, act.Section, act.SlotIndex)
	case protocol.ActRetractOffer:
		s.service.HandleOfferSlotClick(agentID, act.OfferIndex)
	case protocol.ActAcceptTrade:
		s.service.HandleAccept(agentID)
	case protocol.ActDeclineTrade:
		s.service.HandleDecline(agentID)
	case protocol.ActDismissPage:
		s.service.HandlePageDismissed(agentID, act.SessionID)
	case protocol.ActGetTrade:
		s.service.HandlePageOpened(agentID, act.SessionID)
		if snap, ok := s.service.SnapshotFor(agentID, act.SessionID); ok {
			s.roster.Push(agentID, protocol.Event{
				"type":       protocol.EvTradeRefresh,
				"session_id": snap.SessionID,
				"snapshot":   snap,
			})
		}
	case protocol.ActMove:
		s.roster.SetPos(agentID, act.Pos)
	default:
		s.roster.Push(agentID, protocol.Event{
			"type": protocol.EvActionResult,
			"ref":  act.ID,
			"ok":   false,
			"code": protocol.ErrBadRequest,
			"msg":  "unknown action",
		})
	}
}

func (s *Server) pushResult(agentID, ref string, err error) {
	ev := protocol.Event{"type": protocol.EvActionResult, "ref": ref, "ok": err == nil}
	if err != nil {
		if re, ok := err.(*trade.RequestError); ok {
			ev["code"] = re.Code
			ev["msg"] = re.Message
		} else {
			ev["code"] = protocol.ErrInternal
			ev["msg"] = "internal error"
		}
	}
	s.roster.Push(agentID, ev)
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
