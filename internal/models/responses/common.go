package responses

type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}
