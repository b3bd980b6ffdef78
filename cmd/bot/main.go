package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"tradepost.gg/internal/protocol"
)

// A minimal trading client for smoke-testing a running server: it answers
// incoming trade prompts, offers its first backpack slot and accepts.
// With -peer it initiates the trade instead.
func main() {
	var (
		url  = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name = flag.String("name", "bot", "agent name")
		peer = flag.String("peer", "", "agent id to request a trade with (optional)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       *name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	agentID := ""
	offered := false
	actSeq := 0
	act := func(a protocol.ActMsg) {
		actSeq++
		a.Type = protocol.TypeAct
		a.ProtocolVersion = protocol.Version
		a.ID = fmt.Sprintf("I%d", actSeq)
		if err := conn.WriteJSON(a); err != nil {
			logger.Fatalf("send ACT: %v", err)
		}
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			agentID = w.AgentID
			logger.Printf("WELCOME agent_id=%s range=%d", w.AgentID, w.InteractionRange)
			if *peer != "" {
				act(protocol.ActMsg{Action: protocol.ActRequestTrade, TargetID: *peer})
			}

		case protocol.EvMessage:
			var ev struct {
				Text string `json:"text"`
			}
			_ = json.Unmarshal(msg, &ev)
			logger.Printf("MESSAGE %q", ev.Text)

		case protocol.EvTradePrompt:
			var ev struct {
				RequesterID string `json:"requester_id"`
			}
			_ = json.Unmarshal(msg, &ev)
			logger.Printf("prompt from %s: accepting", ev.RequesterID)
			act(protocol.ActMsg{Action: protocol.ActRespondRequest, RequesterID: ev.RequesterID, Accepted: true})

		case protocol.EvTradeOpen, protocol.EvTradeRefresh:
			var ev struct {
				SessionID string                  `json:"session_id"`
				Snapshot  *protocol.TradeSnapshot `json:"snapshot"`
			}
			_ = json.Unmarshal(msg, &ev)
			if ev.Snapshot == nil {
				act(protocol.ActMsg{Action: protocol.ActGetTrade, SessionID: ev.SessionID})
				continue
			}
			snap := ev.Snapshot
			if !offered {
				offered = true
				act(protocol.ActMsg{Action: protocol.ActOfferSlot, Section: "backpack", SlotIndex: 0})
				continue
			}
			if !snap.SelfAccepted {
				act(protocol.ActMsg{Action: protocol.ActAcceptTrade})
			}

		case protocol.EvTradeClose:
			logger.Printf("trade closed (agent_id=%s)", agentID)
		}
	}
}
