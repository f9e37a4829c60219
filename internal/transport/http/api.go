package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"trivia-match-service/internal/domain"
	"trivia-match-service/internal/game"
)

// API is the small REST surface around the engine: create a match,
// check a code, fetch a running match's summary.
type API struct {
	service *game.GameService
}

func NewAPI(service *game.GameService) *API {
	return &API{service: service}
}

// Register wires the API routes onto mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/game/create", a.createMatch)
	mux.HandleFunc("GET /api/game/check/{code}", a.checkMatch)
	mux.HandleFunc("GET /api/game/summary/{code}", a.matchSummary)
}

type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

type createMatchRequest struct {
	QuizID string `json:"quizId"`
}

func (a *API) createMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" {
		writeError(w, http.StatusBadRequest, "quizId is required", "BadRequest")
		return
	}
	snap, quiz, err := a.service.CreateMatch(r.Context(), req.QuizID)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrQuizNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error(), domain.ErrorKind(err))
		return
	}
	log.Printf("created match %s for quiz %s", snap.Code, quiz.ID)
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: map[string]any{
		"matchCode": snap.Code,
		"quiz": map[string]any{
			"id":                quiz.ID,
			"title":             quiz.Title,
			"description":       quiz.Description,
			"totalQuestions":    len(quiz.Questions),
			"timePerQuestionMs": quiz.TimePerQuestionMs,
		},
	}})
}

func (a *API) checkMatch(w http.ResponseWriter, r *http.Request) {
	m, err := a.service.Match(r.PathValue("code"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error(), domain.ErrorKind(err))
		return
	}
	snap := m.Snapshot()
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: map[string]any{
		"match": map[string]any{
			"code":            snap.Code,
			"status":          snap.Status,
			"currentQuestion": snap.CurrentQuestion,
		},
		"players": rosterView(snap),
	}})
}

func (a *API) matchSummary(w http.ResponseWriter, r *http.Request) {
	m, err := a.service.Match(r.PathValue("code"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error(), domain.ErrorKind(err))
		return
	}
	snap := m.Snapshot()
	quiz := m.Quiz()
	ready := 0
	for _, p := range snap.Players {
		if p.Ready {
			ready++
		}
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: map[string]any{
		"match": map[string]any{
			"code":            snap.Code,
			"status":          snap.Status,
			"currentQuestion": snap.CurrentQuestion,
			"createdAt":       snap.CreatedAt,
			"startedAt":       snap.StartedAt,
			"endedAt":         snap.EndedAt,
		},
		"quiz": map[string]any{
			"id":                quiz.ID,
			"title":             quiz.Title,
			"description":       quiz.Description,
			"totalQuestions":    len(quiz.Questions),
			"timePerQuestionMs": quiz.TimePerQuestionMs,
		},
		"players":      rosterView(snap),
		"totalPlayers": len(snap.Players),
		"readyPlayers": ready,
	}})
}

func rosterView(snap domain.MatchSnapshot) []domain.RosterEntry {
	entries := make([]domain.RosterEntry, 0, len(snap.Players))
	for _, p := range snap.Players {
		entries = append(entries, domain.RosterEntry{Nickname: p.Nickname, Score: p.Score, Ready: p.Ready})
	}
	return entries
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message, kind string) {
	writeJSON(w, status, apiResponse{Success: false, Error: message, Kind: kind})
}
