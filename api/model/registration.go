package model

type CreateDraft struct {
	AccountID string                 `json:"account_id"`
	UserID    string                 `json:"user_id"`
	Payload   map[string]interface{} `json:"payload"`
}

type UpdateDraft struct {
	Payload map[string]interface{} `json:"payload"`
}

type SubmitRegistration struct {
	DraftNumber string                 `json:"draft_number"`
	AccountID   string                 `json:"account_id"`
	UserID      string                 `json:"user_id"`
	Payload     map[string]interface{} `json:"payload"`
}

type SubmitSearch struct {
	AccountID       string                 `json:"account_id"`
	ClientReference string                 `json:"client_reference"`
	Query           map[string]interface{} `json:"query"`
}

type RejectReview struct {
	Reason string `json:"reason"`
}
