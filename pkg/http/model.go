package http

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorBody is the data of a failed response.
type ErrorBody struct {
	Error    ErrorDetail `json:"error"`
	Metadata interface{} `json:"metadata,omitempty"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"source"`
	Message string                 `json:"message,omitempty" example:"source is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// ListDataResponse is a list page.
type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}
