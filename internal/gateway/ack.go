package gateway

// Ack is the body the gateway expects from the server-to-server callback.
type Ack struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

var (
	AckConfirmed        = Ack{RspCode: "00", Message: "Confirm Success"}
	AckAlreadyConfirmed = Ack{RspCode: "02", Message: "Order already confirmed"}
	// AckRejected answers every rejection, including failed authentication.
	AckRejected = Ack{RspCode: "99", Message: "Unknow error"}
)
