package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/settlr/internal/gateway"
	settlementdomain "github.com/smallbiznis/settlr/internal/settlement/domain"
)

type checkoutRequest struct {
	OwnerID   snowflake.ID `json:"owner_id"`
	PackageID snowflake.ID `json:"package_id"`
	Kind      string       `json:"kind"`
	Locale    string       `json:"locale"`
}

type checkoutResponse struct {
	Reference  string `json:"reference"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Kind       string `json:"kind"`
	PaymentURL string `json:"payment_url"`
}

func (s *Server) ListPackages(c *gin.Context) {
	packages, err := s.catalogSvc.ListActive(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": packages})
}

func (s *Server) Checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Locale) != "" {
		c.Set(contextLocaleKey, gateway.NormalizeLocale(req.Locale))
	}
	if req.PackageID == 0 {
		AbortWithError(c, newValidationError("package_id", "required", "package_id is required"))
		return
	}

	result, err := s.settlementSvc.Initiate(c.Request.Context(), settlementdomain.InitiateRequest{
		OwnerID:   req.OwnerID,
		PackageID: req.PackageID,
		Kind:      req.Kind,
		ClientIP:  c.ClientIP(),
		Locale:    req.Locale,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("payment_reference", result.Payment.Reference)
	c.JSON(http.StatusCreated, checkoutResponse{
		Reference:  result.Payment.Reference,
		Amount:     result.Payment.Amount,
		Currency:   result.Payment.Currency,
		Kind:       strings.ToLower(strings.TrimSpace(req.Kind)),
		PaymentURL: result.PaymentURL,
	})
}

func (s *Server) GetPaymentStatus(c *gin.Context) {
	reference := strings.TrimSpace(c.Param("reference"))
	if reference == "" {
		AbortWithError(c, newValidationError("reference", "required", "reference is required"))
		return
	}
	c.Set("payment_reference", reference)

	view, err := s.settlementSvc.PaymentStatus(c.Request.Context(), reference)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}
