package gateway

const (
	CodeSuccess = "00"
	CodeOther   = "99"
)

// ResponseCode describes one gateway result code.
type ResponseCode struct {
	Code   string
	Reason string
	En     string
	Vi     string
}

var responseCodes = map[string]ResponseCode{
	"00": {"00", "success", "Payment completed successfully.", "Giao dịch thành công."},
	"07": {"07", "suspicious", "Funds were debited but the transaction was flagged as suspicious.", "Trừ tiền thành công. Giao dịch bị nghi ngờ (liên quan tới lừa đảo, giao dịch bất thường)."},
	"09": {"09", "internet_banking_not_registered", "Your card or account is not registered for internet banking.", "Thẻ/Tài khoản của khách hàng chưa đăng ký dịch vụ InternetBanking tại ngân hàng."},
	"10": {"10", "authentication_failed", "Card or account verification failed more than 3 times.", "Khách hàng xác thực thông tin thẻ/tài khoản không đúng quá 3 lần."},
	"11": {"11", "session_expired", "The payment session expired. Please try again.", "Đã hết hạn chờ thanh toán. Xin quý khách vui lòng thực hiện lại giao dịch."},
	"12": {"12", "account_locked", "Your card or account is locked.", "Thẻ/Tài khoản của khách hàng bị khóa."},
	"13": {"13", "wrong_otp", "The one-time password was incorrect. Please try again.", "Quý khách nhập sai mật khẩu xác thực giao dịch (OTP). Xin quý khách vui lòng thực hiện lại giao dịch."},
	"24": {"24", "cancelled_by_buyer", "You cancelled the payment.", "Khách hàng hủy giao dịch."},
	"51": {"51", "insufficient_funds", "Your account has insufficient funds.", "Tài khoản của quý khách không đủ số dư để thực hiện giao dịch."},
	"65": {"65", "daily_limit_exceeded", "Your account exceeded its daily transaction limit.", "Tài khoản của quý khách đã vượt quá hạn mức giao dịch trong ngày."},
	"75": {"75", "bank_maintenance", "The bank is under maintenance.", "Ngân hàng thanh toán đang bảo trì."},
	"79": {"79", "wrong_password", "The payment password was entered incorrectly too many times.", "Khách hàng nhập sai mật khẩu thanh toán quá số lần quy định. Xin quý khách vui lòng thực hiện lại giao dịch."},
	"99": {"99", "other", "The payment could not be completed.", "Các lỗi khác (lỗi còn lại, không có trong danh sách mã lỗi đã liệt kê)."},
}

// LookupCode returns the description for code, falling back to the generic entry.
func LookupCode(code string) ResponseCode {
	if rc, ok := responseCodes[code]; ok {
		return rc
	}
	return responseCodes[CodeOther]
}

func (rc ResponseCode) Message(locale string) string {
	if NormalizeLocale(locale) == LocaleEnglish {
		return rc.En
	}
	return rc.Vi
}
