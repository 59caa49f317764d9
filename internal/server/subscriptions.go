package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetEntitlement(c *gin.Context) {
	ownerID, err := pathSnowflakeID(c, "owner_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entitlement, err := s.settlementSvc.Entitlement(c.Request.Context(), ownerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, entitlement)
}

func (s *Server) CancelSubscription(c *gin.Context) {
	ownerID, err := pathSnowflakeID(c, "owner_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	subscriptionID, err := pathSnowflakeID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	sub, err := s.settlementSvc.CancelSubscription(c.Request.Context(), ownerID, subscriptionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}
