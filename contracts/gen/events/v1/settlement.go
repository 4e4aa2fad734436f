package v1

// SettlementCompletedData is the data payload carried by settlement.completed
// envelopes. Consumers in other runtimes decode Envelope.Data into this shape.
type SettlementCompletedData struct {
	SettlementID    string                      `json:"settlement_id"`
	CorrelationID   string                      `json:"correlation_id,omitempty"`
	Policy          string                      `json:"policy"`
	TotalSent       string                      `json:"total_sent"`
	SuccessCount    int                         `json:"success_count"`
	TotalRecipients int                         `json:"total_recipients"`
	Outcomes        []SettlementOutcomeContract `json:"outcomes"`
}

// SettlementOutcomeContract is one recipient outcome inside a
// settlement.completed event.
type SettlementOutcomeContract struct {
	Address              string `json:"address"`
	Family               string `json:"family"`
	Amount               string `json:"amount"`
	Succeeded            bool   `json:"succeeded"`
	TransactionReference string `json:"transaction_reference,omitempty"`
	ErrorKind            string `json:"error_kind,omitempty"`
}
