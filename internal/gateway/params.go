// Package gateway speaks the redirect/callback contract of the hosted
// payment page.
package gateway

const (
	ParamVersion           = "vnp_Version"
	ParamCommand           = "vnp_Command"
	ParamMerchantCode      = "vnp_TmnCode"
	ParamAmount            = "vnp_Amount"
	ParamCurrency          = "vnp_CurrCode"
	ParamReference         = "vnp_TxnRef"
	ParamOrderInfo         = "vnp_OrderInfo"
	ParamOrderType         = "vnp_OrderType"
	ParamLocale            = "vnp_Locale"
	ParamReturnURL         = "vnp_ReturnUrl"
	ParamClientIP          = "vnp_IpAddr"
	ParamCreateDate        = "vnp_CreateDate"
	ParamExpireDate        = "vnp_ExpireDate"
	ParamBankCode          = "vnp_BankCode"
	ParamResponseCode      = "vnp_ResponseCode"
	ParamTransactionStatus = "vnp_TransactionStatus"
	ParamTransactionNo     = "vnp_TransactionNo"
	ParamPayDate           = "vnp_PayDate"
)

// DateLayout is the gateway timestamp format, expressed in the gateway timezone.
const DateLayout = "20060102150405"

// amountScale converts minor units to the gateway's integer amount field.
const amountScale = 100

const (
	LocaleVietnamese = "vn"
	LocaleEnglish    = "en"
)
