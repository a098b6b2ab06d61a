package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	cartdomain "github.com/stockerhq/stocker/internal/cart/domain"
)

func (s *Server) CreateCart(c *gin.Context) {
	var req cartdomain.CreateCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.cartSvc.Create(c.Request.Context(), cartdomain.CreateCartRequest{
		UserID:       strings.TrimSpace(req.UserID),
		BillingCycle: strings.TrimSpace(req.BillingCycle),
		Currency:     strings.TrimSpace(req.Currency),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetActiveCart(c *gin.Context) {
	resp, err := s.cartSvc.GetActive(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCartByID(c *gin.Context) {
	cartID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	resp, err := s.cartSvc.GetByID(c.Request.Context(), cartID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AddCartItem(c *gin.Context) {
	cartID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req cartdomain.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.CartID = cartID
	req.ItemType = strings.TrimSpace(req.ItemType)
	req.Code = strings.TrimSpace(req.Code)

	resp, err := s.cartSvc.AddItem(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateCartItemQuantity(c *gin.Context) {
	cartID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := parseIDParam(c, "itemId")
	if !ok {
		return
	}

	var req cartdomain.UpdateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.CartID = cartID
	req.ItemID = itemID

	resp, err := s.cartSvc.UpdateItemQuantity(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RemoveCartItem(c *gin.Context) {
	cartID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := parseIDParam(c, "itemId")
	if !ok {
		return
	}

	resp, err := s.cartSvc.RemoveItem(c.Request.Context(), cartID, itemID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApplyCoupon(c *gin.Context) {
	cartID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req cartdomain.ApplyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.CartID = cartID
	req.Code = strings.TrimSpace(req.Code)

	resp, err := s.cartSvc.ApplyCoupon(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RemoveCoupon(c *gin.Context) {
	cartID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	resp, err := s.cartSvc.RemoveCoupon(c.Request.Context(), cartID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ChangeCartBillingCycle(c *gin.Context) {
	cartID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req cartdomain.ChangeBillingCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.CartID = cartID
	req.BillingCycle = strings.TrimSpace(req.BillingCycle)

	resp, err := s.cartSvc.ChangeBillingCycle(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ClearCart(c *gin.Context) {
	cartID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	resp, err := s.cartSvc.Clear(c.Request.Context(), cartID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ExtendCartExpiration(c *gin.Context) {
	cartID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req cartdomain.ExtendExpirationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.CartID = cartID

	resp, err := s.cartSvc.ExtendExpiration(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AbandonCart(c *gin.Context) {
	cartID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := s.cartSvc.Abandon(c.Request.Context(), cartID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// parseIDParam rejects path IDs that are not snowflakes before they hit the
// database layer.
func parseIDParam(c *gin.Context, name string) (string, bool) {
	id := strings.TrimSpace(c.Param(name))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, newValidationError(name, "invalid_"+name, "invalid "+name))
		return "", false
	}
	return id, true
}
