package application

// Job types and payloads on the payments and refunds queues.
const JobProcess = "process"

type PaymentJob struct {
	PaymentID string `json:"payment_id"`
}

type RefundJob struct {
	RefundID string `json:"refund_id"`
}
