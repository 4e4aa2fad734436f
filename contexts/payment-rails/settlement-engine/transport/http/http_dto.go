package http

type APIResponse struct {
	Success bool            `json:"success"`
	Data    any             `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Details []FieldErrorDTO `json:"details,omitempty"`
}

type FieldErrorDTO struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type DirectSendRequest struct {
	RecipientAddress string  `json:"recipientAddress"`
	Amount           float64 `json:"amount"`
	Memo             string  `json:"memo,omitempty"`
	CorrelationID    string  `json:"correlationId,omitempty"`
}

type AttributionRequest struct {
	PrimaryID       string   `json:"primaryId"`
	SourceAddresses []string `json:"sourceAddresses"`
	CorrelationID   string   `json:"correlationId,omitempty"`
	Memo            string   `json:"memo,omitempty"`
}

type SplitRecipientDTO struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
	Role    string  `json:"role,omitempty"`
}

type SplitRequest struct {
	Recipients    []SplitRecipientDTO `json:"recipients"`
	TotalAmount   float64             `json:"totalAmount"`
	ReferralID    string              `json:"referralId,omitempty"`
	CorrelationID string              `json:"correlationId,omitempty"`
	Memo          string              `json:"memo,omitempty"`
}

type TransferOutcomeDTO struct {
	Address       string  `json:"address"`
	Family        string  `json:"family"`
	Amount        float64 `json:"amount"`
	Succeeded     bool    `json:"succeeded"`
	TransactionID string  `json:"transactionId,omitempty"`
	ErrorKind     string  `json:"errorKind,omitempty"`
	ErrorDetail   string  `json:"errorDetail,omitempty"`
}

type SettlementResultDTO struct {
	SettlementID    string               `json:"settlementId"`
	CorrelationID   string               `json:"correlationId,omitempty"`
	Policy          string               `json:"policy"`
	Outcomes        []TransferOutcomeDTO `json:"outcomes"`
	TotalSent       float64              `json:"totalSent"`
	SuccessCount    int                  `json:"successCount"`
	TotalRecipients int                  `json:"totalRecipients"`
	Replayed        bool                 `json:"replayed,omitempty"`
	SettledAt       string               `json:"settledAt"`
}

type BalanceDTO struct {
	Address       string  `json:"address"`
	NativeBalance float64 `json:"nativeBalance"`
	TokenBalance  float64 `json:"tokenBalance"`
}

type FeeEstimateDTO struct {
	PerTransferFee float64 `json:"perTransferFee"`
	Currency       string  `json:"currency"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Degraded bool   `json:"degraded,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
