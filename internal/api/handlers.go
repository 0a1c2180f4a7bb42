package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/park285/cheese-arena/internal/combat"
	"github.com/park285/cheese-arena/internal/match"
)

type handlers struct {
	reg *match.Registry
}

type createRequest struct {
	PlayerName string `json:"playerName"`
}

type joinRequest struct {
	MatchID    string `json:"matchId"`
	PlayerName string `json:"playerName"`
}

type actionRequest struct {
	PlayerID string `json:"playerId"`
	Type     string `json:"type"`
}

// SeatResponse tells a client which match and seat it holds.
type SeatResponse struct {
	MatchID  string         `json:"matchId"`
	PlayerID match.PlayerID `json:"playerId"`
}

type ActionResponse struct {
	State match.State `json:"state"`
}

var errBadBody = fiber.NewError(fiber.StatusBadRequest, "Invalid request body")

func (h *handlers) create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return errBadBody
	}
	st, err := h.reg.CreateMatch(req.PlayerName)
	if err != nil {
		return err
	}
	return c.JSON(SeatResponse{MatchID: st.MatchID, PlayerID: match.P1})
}

func (h *handlers) join(c *fiber.Ctx) error {
	var req joinRequest
	if err := c.BodyParser(&req); err != nil {
		return errBadBody
	}
	st, err := h.reg.JoinMatch(req.MatchID, req.PlayerName)
	if err != nil {
		return err
	}
	return c.JSON(SeatResponse{MatchID: st.MatchID, PlayerID: match.P2})
}

func (h *handlers) get(c *fiber.Ctx) error {
	st, ok := h.reg.GetMatch(c.Params("id"))
	if !ok {
		return match.ErrNotFound
	}
	return c.JSON(st)
}

func (h *handlers) action(c *fiber.Ctx) error {
	var req actionRequest
	if err := c.BodyParser(&req); err != nil {
		return errBadBody
	}
	player, ok := match.ParsePlayerID(req.PlayerID)
	if !ok {
		return match.ErrInvalidPlayer
	}
	act, ok := combat.ParseAction(req.Type)
	if !ok {
		return match.ErrInvalidAction
	}
	st, err := h.reg.ApplyAction(c.Params("id"), player, act)
	if err != nil {
		return err
	}
	return c.JSON(ActionResponse{State: st})
}

func (h *handlers) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "matches": h.reg.Len()})
}
