package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/orchestrator"
)

// ErrorResponse is the JSON shape returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// sendMessageRequest is the JSON body accepted by POST /v1/messages.
type sendMessageRequest struct {
	UserID  string `json:"user_id"`
	DayID   string `json:"day_id"`
	Message string `json:"message"`
}

// handleSendMessage runs one turn of the chat orchestrator (spec §4.10)
// and returns its result.
func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.UserID == "" || req.DayID == "" || req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "user_id, day_id, and message are required"})
	}

	result, err := s.orch.SendMessage(c.Context(), orchestrator.SendMessageInput{
		UserID:  req.UserID,
		DayID:   req.DayID,
		Message: req.Message,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.JSON(result)
}

// handleListBlocks returns the Bridge Block metadata for a given day.
func (s *Server) handleListBlocks(c *fiber.Ctx) error {
	dayID := c.Query("day_id")
	if dayID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "day_id query parameter is required"})
	}

	blocks, err := s.driver.Blocks().GetByDay(c.Context(), dayID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list blocks"})
	}

	return c.JSON(map[string]any{
		"count":  len(blocks),
		"blocks": blocks,
	})
}

// handleGetBlock returns a single Bridge Block and its turns.
func (s *Server) handleGetBlock(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "id parameter required"})
	}

	block, err := s.driver.Blocks().Get(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "block not found"})
	}

	turns, err := s.driver.Turns().GetByBlock(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to load turns"})
	}

	return c.JSON(map[string]any{
		"block": block,
		"turns": turns,
	})
}

// handleBlockLineage returns every lineage node derived, directly or
// transitively, from the given id (its descendants, unbounded depth).
func (s *Server) handleBlockLineage(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "id parameter required"})
	}

	descendants, err := s.lineage.GetDescendants(c.Context(), id, 0)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to load lineage"})
	}

	return c.JSON(map[string]any{
		"block_id":    id,
		"descendants": descendants,
	})
}

// handleListFacts returns facts for a given category, or all facts
// when no category is given.
func (s *Server) handleListFacts(c *fiber.Ctx) error {
	category := model.FactCategory(c.Query("category"))

	facts, err := s.driver.Facts().List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list facts"})
	}

	if category != "" {
		filtered := make([]*model.Fact, 0, len(facts))
		for _, f := range facts {
			if f.Category == category {
				filtered = append(filtered, f)
			}
		}
		facts = filtered
	}

	return c.JSON(map[string]any{
		"count": len(facts),
		"facts": facts,
	})
}
