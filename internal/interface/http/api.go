package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/casino-hub/casino-hub/internal/application/command"
	"github.com/casino-hub/casino-hub/internal/application/query"
	"github.com/casino-hub/casino-hub/internal/domain/player"
	"github.com/casino-hub/casino-hub/internal/domain/shared"
	"github.com/casino-hub/casino-hub/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// API RESOURCES
//
//   GET  /api/players/{id}        player state
//   POST /api/players             create or sync a profile
//   POST /api/bonuses             claim the daily or quick bonus
//   GET  /api/leaderboards/global top players
// ══════════════════════════════════════════════════════════════════════════════

const (
	resourcePlayers      = "players"
	resourceBonuses      = "bonuses"
	resourceLeaderboards = "leaderboards"
)

// handleAPIGet dispatches GET /api/{resource}/{id}.
func (s *Server) handleAPIGet(w http.ResponseWriter, r *http.Request) {
	switch resource := r.PathValue("resource"); resource {
	case resourcePlayers:
		s.getPlayer(w, r, r.PathValue("id"))
	case resourceLeaderboards:
		s.getLeaderboard(w, r, r.PathValue("id"))
	default:
		s.unknownResource(w, r, resource)
	}
}

// handleAPIPost dispatches POST /api/{resource}.
func (s *Server) handleAPIPost(w http.ResponseWriter, r *http.Request) {
	switch resource := r.PathValue("resource"); resource {
	case resourcePlayers:
		s.syncPlayer(w, r)
	case resourceBonuses:
		s.claimBonus(w, r)
	default:
		s.unknownResource(w, r, resource)
	}
}

func (s *Server) unknownResource(w http.ResponseWriter, r *http.Request, resource string) {
	writeJSONError(w, r, http.StatusNotFound, "unknown_resource", fmt.Sprintf("Unknown resource %q", resource))
}

func (s *Server) notConfigured(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Resource is not configured")
}

// ─────────────────────────────────────────────────────────────────────────────
// Players
// ─────────────────────────────────────────────────────────────────────────────

func (s *Server) getPlayer(w http.ResponseWriter, r *http.Request, rawID string) {
	if s.deps.GetPlayer == nil {
		s.notConfigured(w, r)
		return
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		s.writeDomainError(w, r, shared.ErrInvalidPlayerID)
		return
	}

	dto, err := s.deps.GetPlayer.Handle(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

type syncPlayerRequest struct {
	UserID   userID `json:"user_id"`
	Username string `json:"username"`
}

func (s *Server) syncPlayer(w http.ResponseWriter, r *http.Request) {
	if s.deps.SyncProfile == nil {
		s.notConfigured(w, r)
		return
	}
	var req syncPlayerRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeBodyError(w, r, err)
		return
	}

	res, err := s.deps.SyncProfile.Handle(r.Context(), command.SyncProfileCommand{
		PlayerID: int64(req.UserID),
		Username: req.Username,
		Source:   command.SourceWebApp,
		Touch:    true,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, query.NewPlayerDTO(res.Player))
}

// ─────────────────────────────────────────────────────────────────────────────
// Bonuses
// ─────────────────────────────────────────────────────────────────────────────

type claimBonusRequest struct {
	UserID userID `json:"user_id"`
	Kind   string `json:"kind"`
}

// BonusResponse is the body of a granted bonus.
type BonusResponse struct {
	Kind        player.BonusKind `json:"kind"`
	Amount      int64            `json:"amount"`
	XPGained    int              `json:"xp_gained"`
	Balance     int64            `json:"balance"`
	XP          int              `json:"xp"`
	Level       int              `json:"level"`
	NextLevelXP int              `json:"next_level_xp"`
	LeveledUp   bool             `json:"leveled_up"`
	Message     string           `json:"message"`
}

func (s *Server) claimBonus(w http.ResponseWriter, r *http.Request) {
	if s.deps.ClaimBonus == nil {
		s.notConfigured(w, r)
		return
	}
	var req claimBonusRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeBodyError(w, r, err)
		return
	}

	// Free coins belong to the bot command, not the webapp.
	kind := player.BonusKind(req.Kind)
	if kind != player.BonusDaily && kind != player.BonusQuick {
		s.writeDomainError(w, r, shared.ErrUnknownBonusKind)
		return
	}

	res, err := s.deps.ClaimBonus.Handle(r.Context(), command.ClaimBonusCommand{
		PlayerID: int64(req.UserID),
		Kind:     kind,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	p := res.Player
	writeJSON(w, r, http.StatusOK, BonusResponse{
		Kind:        kind,
		Amount:      res.Rule.Coins,
		XPGained:    res.Rule.XP,
		Balance:     p.Balance,
		XP:          p.XP,
		Level:       p.Level,
		NextLevelXP: p.NextLevelXP(),
		LeveledUp:   res.LeveledUp,
		Message:     presenter.BonusClaimed(kind),
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Leaderboards
// ─────────────────────────────────────────────────────────────────────────────

func (s *Server) getLeaderboard(w http.ResponseWriter, r *http.Request, id string) {
	if s.deps.GetLeaderboard == nil {
		s.notConfigured(w, r)
		return
	}
	if id != query.LeaderboardGlobal {
		writeJSONError(w, r, http.StatusNotFound, "not_found", fmt.Sprintf("Leaderboard %q not found", id))
		return
	}

	res, err := s.deps.GetLeaderboard.Handle(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	meta := newMeta()
	meta.Cached = res.Cached
	writeJSONWithMeta(w, r, http.StatusOK, res.Entries, meta)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST DECODING
// ══════════════════════════════════════════════════════════════════════════════

var errEmptyBody = errors.New("request body is empty")

// decodeBody reads one JSON object from the request body.
func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return errEmptyBody
	}
	if body[0] != '{' {
		return errors.New("request body must be a JSON object")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON object")
	}
	return nil
}

func (s *Server) writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSONError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
		return
	}
	writeAPIError(w, r, http.StatusBadRequest, &APIError{
		Code:    "invalid_request",
		Message: "Malformed request body",
		Details: err.Error(),
	})
}

// userID accepts both 123 and "123"; the webapp sends either.
type userID int64

func (id *userID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("user_id must be an integer: %w", err)
	}
	*id = userID(v)
	return nil
}
