package http_api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wishliste/donum/internal/apperrors"
	"github.com/wishliste/donum/internal/models"
	"github.com/wishliste/donum/pkg/validation"
)

// ReserveRequest is the optional JSON body of a reservation. A missing or
// null amount reserves the whole item. The amount may be a JSON string or
// number.
type ReserveRequest struct {
	Amount json.RawMessage `json:"amount"`
	Name   string          `json:"name"`
}

func (r ReserveRequest) amount() (models.Amount, error) {
	if len(r.Amount) == 0 || string(r.Amount) == "null" {
		return models.Full(), nil
	}
	var s string
	if err := json.Unmarshal(r.Amount, &s); err != nil {
		s = string(r.Amount)
	}
	v, err := validation.ParseAmount(s)
	if err != nil {
		return models.Amount{}, err
	}
	return models.Partial(v), nil
}

// RepriceRequest carries the new price. A null price removes it.
type RepriceRequest struct {
	Price json.RawMessage `json:"price"`
}

// SnapshotResponse wraps a single item's funding.
type SnapshotResponse struct {
	Success bool                    `json:"success"`
	Funding *models.FundingSnapshot `json:"funding"`
}

// ListFundingResponse wraps the funding of every item of a list.
type ListFundingResponse struct {
	Success bool                      `json:"success"`
	Items   []*models.FundingSnapshot `json:"items"`
}

func (s *HTTPServer) up(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func itemID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("item id must be a positive integer")
	}
	return id, nil
}

// reserve is a handler for POST /items/:id/reserve.
func (s *HTTPServer) reserve(c *gin.Context) {
	id, err := itemID(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	// The body is optional: an empty one reserves the whole item.
	var req ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		s.logger.Debug("Invalid request body", "error", err)
		s.fail(c, badRequest("Invalid request body: "+err.Error()))
		return
	}

	amount, err := req.amount()
	if err != nil {
		s.fail(c, err)
		return
	}

	result, err := s.donum.Reserve(c.Request.Context(), models.ReserveInput{
		ItemID:      id,
		Amount:      amount,
		DisplayName: req.Name,
		BearerToken: bearerToken(c),
		GuestToken:  s.guestToken(c),
	})
	if result != nil && result.GuestToken != "" {
		s.setGuestToken(c, result.GuestToken, result.GuestExpiresAt)
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, SnapshotResponse{Success: true, Funding: result.Snapshot})
}

// unreserve is a handler for DELETE /items/:id/reserve.
func (s *HTTPServer) unreserve(c *gin.Context) {
	id, err := itemID(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	snap, err := s.donum.Unreserve(c.Request.Context(), models.UnreserveInput{
		ItemID:         id,
		ContributionID: c.Query("contribution"),
		DisplayName:    c.Query("name"),
		BearerToken:    bearerToken(c),
		GuestToken:     s.guestToken(c),
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, SnapshotResponse{Success: true, Funding: snap})
}

// itemFunding is a handler for GET /items/:id/funding.
func (s *HTTPServer) itemFunding(c *gin.Context) {
	id, err := itemID(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	snap, err := s.donum.Snapshot(c.Request.Context(), id, s.viewer(c))
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, SnapshotResponse{Success: true, Funding: snap})
}

// reprice is a handler for PUT /items/:id/price.
func (s *HTTPServer) reprice(c *gin.Context) {
	id, err := itemID(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	var req RepriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("Invalid request body: "+err.Error()))
		return
	}
	if len(req.Price) == 0 {
		s.fail(c, badRequest("price is required, use null to remove it"))
		return
	}
	var price decimal.NullDecimal
	if err := json.Unmarshal(req.Price, &price); err != nil {
		s.fail(c, badRequest("price must be a decimal or null"))
		return
	}

	snap, err := s.donum.Reprice(c.Request.Context(), models.RepriceInput{
		ItemID:      id,
		BearerToken: bearerToken(c),
		Price:       price,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, SnapshotResponse{Success: true, Funding: snap})
}

// listFunding is a handler for GET /lists/:key/funding.
func (s *HTTPServer) listFunding(c *gin.Context) {
	snaps, err := s.donum.ListSnapshots(c.Request.Context(), c.Param("key"), s.viewer(c))
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, ListFundingResponse{Success: true, Items: snaps})
}

// myContributions is a handler for GET /me/contributions. It lists the
// funding of every item the caller contributed to, newest first.
func (s *HTTPServer) myContributions(c *gin.Context) {
	snaps, err := s.donum.MyContributions(c.Request.Context(), s.viewer(c))
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, ListFundingResponse{Success: true, Items: snaps})
}

// logoutGuest revokes the caller's guest session and clears its cookie.
func (s *HTTPServer) logoutGuest(c *gin.Context) {
	token := s.guestToken(c)
	if token == "" {
		s.fail(c, apperrors.New(apperrors.KindUnauthenticated, apperrors.CodeGuestUnknown, "no guest session"))
		return
	}

	if err := s.donum.LogoutGuest(c.Request.Context(), token); err != nil {
		s.fail(c, err)
		return
	}

	s.clearGuestToken(c)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Guest session ended",
	})
}
