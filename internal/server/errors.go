package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/settlr/internal/catalog/domain"
	"github.com/smallbiznis/settlr/internal/gateway"
	paymentdomain "github.com/smallbiznis/settlr/internal/payment/domain"
	"github.com/smallbiznis/settlr/internal/pricing"
	settlementdomain "github.com/smallbiznis/settlr/internal/settlement/domain"
	subscriptiondomain "github.com/smallbiznis/settlr/internal/subscription/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// contextLocaleKey carries the buyer's locale so rejections are explained in it.
const contextLocaleKey = "locale"

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if locale := c.GetString(contextLocaleKey); locale != "" {
			if msg, ok := reasonMessage(locale, payload.Code); ok {
				payload.Message = msg
			}
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case errors.Is(err, settlementdomain.ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Code:    settlementdomain.ErrTooManyRequests.Error(),
			Message: "too many requests",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Code:    reasonCode(err),
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    reasonCode(err),
			Message: "conflict",
		}
	case errors.Is(err, ErrInvalidRequest),
		settlementdomain.Classify(err) == settlementdomain.ErrorClassCaller:
		code := reasonCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    code,
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, settlementdomain.ErrCallbackInProgress):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger's error_type and error_code.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, catalogdomain.ErrPackageNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, subscriptiondomain.ErrAlreadyActive),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotActive),
		errors.Is(err, subscriptiondomain.ErrPackageMismatch),
		errors.Is(err, settlementdomain.ErrNoActiveSubscription),
		errors.Is(err, pricing.ErrInvalidUpgrade),
		settlementdomain.Classify(err) == settlementdomain.ErrorClassStateConflict:
		return true
	default:
		return false
	}
}

var knownReasons = []error{
	ErrInvalidRequest,
	ErrNotFound,
	ErrConflict,
	settlementdomain.ErrInvalidKind,
	settlementdomain.ErrInvalidOwner,
	settlementdomain.ErrNoPayableAccount,
	settlementdomain.ErrNoActiveSubscription,
	settlementdomain.ErrSettlementConflict,
	catalogdomain.ErrPackageNotFound,
	catalogdomain.ErrInvalidPackage,
	paymentdomain.ErrPaymentNotFound,
	paymentdomain.ErrPaymentNotPending,
	paymentdomain.ErrInvalidReference,
	subscriptiondomain.ErrAlreadyActive,
	subscriptiondomain.ErrSubscriptionNotFound,
	subscriptiondomain.ErrSubscriptionNotActive,
	subscriptiondomain.ErrPackageMismatch,
	subscriptiondomain.ErrInvalidDuration,
	pricing.ErrInvalidUpgrade,
	pricing.ErrInvalidKind,
}

// reasonCode returns the sentinel code for err, unwrapping any context added
// along the way.
func reasonCode(err error) string {
	for _, known := range knownReasons {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}

func validationErrorField(code string) string {
	switch code {
	case settlementdomain.ErrInvalidKind.Error():
		return "kind"
	case settlementdomain.ErrInvalidOwner.Error(), settlementdomain.ErrNoPayableAccount.Error():
		return "owner_id"
	case catalogdomain.ErrInvalidPackage.Error(), subscriptiondomain.ErrInvalidDuration.Error():
		return "package_id"
	case "invalid_request":
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	if msg, ok := reasonMessage(gateway.LocaleEnglish, code); ok {
		return msg
	}
	return "invalid value"
}

var reasonMessages = map[string][2]string{
	"invalid_request":               {"invalid request", "Yêu cầu không hợp lệ."},
	"invalid_kind":                  {"Unknown purchase type.", "Loại giao dịch không hợp lệ."},
	"invalid_owner":                 {"Unknown account.", "Tài khoản không hợp lệ."},
	"no_payable_account":            {"Link a payment account before purchasing.", "Vui lòng liên kết tài khoản thanh toán trước khi mua gói."},
	"no_active_subscription":        {"You have no active subscription to change.", "Bạn chưa có gói đang hoạt động."},
	"package_not_found":             {"The package is not available.", "Gói dịch vụ không tồn tại hoặc đã ngừng bán."},
	"invalid_package":               {"The package is not available.", "Gói dịch vụ không hợp lệ."},
	"subscription_already_active":   {"You already have an active subscription.", "Bạn đang có gói dịch vụ còn hiệu lực."},
	"subscription_package_mismatch": {"Renewals must keep the current package.", "Chỉ có thể gia hạn đúng gói đang sử dụng."},
	"subscription_not_active":       {"The subscription is no longer active.", "Gói dịch vụ không còn hiệu lực."},
	"subscription_not_found":        {"Subscription not found.", "Không tìm thấy gói dịch vụ."},
	"invalid_upgrade":               {"Upgrades must move to a more expensive package.", "Chỉ có thể nâng cấp lên gói có giá cao hơn."},
	"payment_not_found":             {"Payment not found.", "Không tìm thấy giao dịch."},
	"invalid_callback":              {"We could not verify the payment result. Please check your payment history.", "Không xác thực được kết quả thanh toán. Vui lòng kiểm tra lại lịch sử giao dịch."},
	"payment_processing":            {"Your payment is being confirmed. Please check again shortly.", "Giao dịch đang được xác nhận, vui lòng kiểm tra lại sau ít phút."},
	"too_many_requests":             {"Too many attempts. Please wait and try again.", "Bạn thao tác quá nhanh, vui lòng thử lại sau."},
}

// reasonMessage localizes a rejection code for the buyer.
func reasonMessage(locale, code string) (string, bool) {
	msgs, ok := reasonMessages[code]
	if !ok {
		return "", false
	}
	if gateway.NormalizeLocale(locale) == gateway.LocaleEnglish {
		return msgs[0], true
	}
	return msgs[1], true
}
