package models

// Requests for prediction HTTP endpoints.

type PredictRequest struct {
	Data   interface{} `json:"data"`
	Source string      `json:"source" default:"api" validate:"oneof=api upload manual"`
}

type HistoryRequest struct {
	Limit int    `query:"limit" default:"50" validate:"gte=1,lte=1000"`
	From  string `query:"from"`
	To    string `query:"to"`
}

type JobStatusRequest struct {
	ID string `param:"id" validate:"required,uuid"`
}

// PredictResponse is the data of a successful evaluation.
type PredictResponse struct {
	Predictions []Verdict       `json:"predictions"`
	Metadata    RequestMetadata `json:"metadata"`
}
