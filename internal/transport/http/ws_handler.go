package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"trivia-match-service/internal/domain"
	"trivia-match-service/internal/game"
)

// WSHandler upgrades connections and translates the socket protocol
// into engine calls. Engine errors go back to the originating
// connection only; broadcasts come from the engine through the hub.
type WSHandler struct {
	service  *game.GameService
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(service *game.GameService, hub *Hub) *WSHandler {
	return &WSHandler{
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	Code     string `json:"code"`
	Nickname string `json:"nickname"`
}

type answerPayload struct {
	QuestionID  string `json:"questionId"`
	AnswerID    string `json:"answerId"`
	TimeTakenMs int    `json:"timeTakenMs"`
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// session is the per-connection state the engine needs to route events;
// keeping the match code here is what lets a disconnect find its match.
type session struct {
	matchCode string
	playerID  string
	nickname  string
}

// ServeWS runs one connection's read loop until the client goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	h.hub.Add(connID, conn)
	var sess session

	defer func() {
		if sess.matchCode != "" {
			if err := h.service.Leave(sess.matchCode, sess.playerID); err != nil {
				log.Printf("ws %s: leave match %s: %v", connID, sess.matchCode, err)
			}
		}
		h.hub.Remove(connID)
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "joinMatch":
			var payload joinPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.sendError(connID, "BadPayload", "invalid join payload")
				continue
			}
			if sess.matchCode != "" {
				h.sendError(connID, "AlreadyJoined", "already in a match")
				continue
			}
			// Subscribe before joining so the playerJoined and
			// playersUpdate broadcasts from our own join reach this
			// connection too.
			h.hub.JoinRoom(payload.Code, connID)
			player, err := h.service.Join(payload.Code, payload.Nickname, connID)
			if err != nil {
				h.hub.LeaveRoom(payload.Code, connID)
				h.sendEngineError(connID, err)
				continue
			}
			sess = session{matchCode: payload.Code, playerID: player.ID, nickname: player.Nickname}
			h.hub.Send(connID, "joined", player)
			log.Printf("player %s joined match %s", player.Nickname, payload.Code)

		case "setPlayerReady":
			if sess.matchCode == "" {
				h.sendError(connID, "NotInMatch", "join a match first")
				continue
			}
			if err := h.service.SetReady(sess.matchCode, sess.playerID); err != nil {
				h.sendEngineError(connID, err)
			}

		case "startMatch":
			if sess.matchCode == "" {
				h.sendError(connID, "NotInMatch", "join a match first")
				continue
			}
			if err := h.service.Start(sess.matchCode); err != nil {
				h.sendEngineError(connID, err)
			}

		case "submitAnswer":
			if sess.matchCode == "" {
				h.sendError(connID, "NotInMatch", "join a match first")
				continue
			}
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.sendError(connID, "BadPayload", "invalid answer payload")
				continue
			}
			rec, err := h.service.SubmitAnswer(sess.matchCode, sess.playerID, payload.QuestionID, payload.AnswerID, payload.TimeTakenMs)
			if err != nil {
				h.sendEngineError(connID, err)
				continue
			}
			h.hub.Send(connID, "answerAccepted", rec)

		default:
			h.sendError(connID, "UnsupportedType", "unsupported message type")
		}
	}
}

func (h *WSHandler) sendError(connID, kind, message string) {
	h.hub.Send(connID, "error", errorPayload{Kind: kind, Message: message})
}

func (h *WSHandler) sendEngineError(connID string, err error) {
	h.hub.Send(connID, "error", errorPayload{Kind: domain.ErrorKind(err), Message: err.Error()})
}
