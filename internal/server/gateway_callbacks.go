package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/settlr/internal/gateway"
	paymentdomain "github.com/smallbiznis/settlr/internal/payment/domain"
	settlementdomain "github.com/smallbiznis/settlr/internal/settlement/domain"
	"go.uber.org/zap"
)

const gatewayParamPrefix = "vnp_"

type gatewayReturnResponse struct {
	Reference    string                   `json:"reference,omitempty"`
	Outcome      settlementdomain.Outcome `json:"outcome,omitempty"`
	State        paymentdomain.ViewState  `json:"state,omitempty"`
	Success      bool                     `json:"success"`
	ResponseCode string                   `json:"response_code,omitempty"`
	Message      string                   `json:"message"`
}

// HandleGatewayIPN is the server-to-server callback. The gateway only reads
// the acknowledgement, so the HTTP status is always 200 and rejections are
// never explained.
func (s *Server) HandleGatewayIPN(c *gin.Context) {
	params, err := gatewayParams(c)
	if err != nil {
		c.JSON(http.StatusOK, gateway.AckRejected)
		return
	}
	reference := params.Get(gateway.ParamReference)
	c.Set("payment_reference", reference)

	result, err := s.settlementSvc.ApplyCallback(c.Request.Context(), params)
	if err != nil {
		// Anything but 00/02 makes the gateway retry later.
		s.log.Warn("gateway callback not applied",
			zap.String("reference", reference),
			zap.Error(err),
		)
		_ = c.Error(err)
		c.JSON(http.StatusOK, gateway.AckRejected)
		return
	}

	s.log.Info("gateway callback handled",
		zap.String("reference", reference),
		zap.String("outcome", string(result.Outcome)),
	)
	c.JSON(http.StatusOK, result.Ack())
}

// HandleGatewayReturn is where the buyer lands after the hosted page. It
// applies the same callback idempotently and explains the outcome.
func (s *Server) HandleGatewayReturn(c *gin.Context) {
	locale := requestLocale(c, s.gatewayCfg.Locale)
	c.Set(contextLocaleKey, locale)

	params, err := gatewayParams(c)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	reference := params.Get(gateway.ParamReference)
	c.Set("payment_reference", reference)

	result, err := s.settlementSvc.ApplyCallback(c.Request.Context(), params)
	switch {
	case errors.Is(err, settlementdomain.ErrCallbackInProgress):
		msg, _ := reasonMessage(locale, "payment_processing")
		c.JSON(http.StatusAccepted, gatewayReturnResponse{
			Reference: reference,
			State:     paymentdomain.ViewStateProcessing,
			Message:   msg,
		})
		return
	case err != nil:
		AbortWithError(c, err)
		return
	}

	if settlementdomain.ClassifyOutcome(result.Outcome) == settlementdomain.ErrorClassAuth {
		msg, _ := reasonMessage(locale, "invalid_callback")
		c.JSON(http.StatusBadRequest, gatewayReturnResponse{Message: msg})
		return
	}

	code := result.ResponseCode
	if code == "" {
		code = strings.TrimSpace(params.Get(gateway.ParamResponseCode))
	}
	resp := gatewayReturnResponse{
		Reference:    reference,
		Outcome:      result.Outcome,
		ResponseCode: code,
		Message:      s.messages.Message(locale, code),
	}

	view, err := s.settlementSvc.PaymentStatus(c.Request.Context(), reference)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	resp.State = view.State
	resp.Success = view.State == paymentdomain.ViewStateCompleted

	c.JSON(http.StatusOK, resp)
}

// gatewayParams keeps only the gateway's own fields so extra query
// parameters never take part in the signature.
func gatewayParams(c *gin.Context) (url.Values, error) {
	if err := c.Request.ParseForm(); err != nil {
		return nil, err
	}
	params := make(url.Values, len(c.Request.Form))
	for key, values := range c.Request.Form {
		if strings.HasPrefix(key, gatewayParamPrefix) {
			params[key] = values
		}
	}
	return params, nil
}
