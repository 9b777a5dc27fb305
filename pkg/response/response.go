package response

// Response represents a standard API response format
type Response struct {
	Status     string      `json:"status"`      // "success" or "error"
	StatusCode int         `json:"status_code"` // HTTP status code
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	Code       string      `json:"code,omitempty"`    // error kind, e.g. NOT_FOUND
	Details    interface{} `json:"details,omitempty"` // per-item reasons for bulk/validation failures
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// SuccessWithMessage is Success plus a human-readable message
func SuccessWithMessage(statusCode int, message string, data interface{}) Response {
	resp := Success(statusCode, data)
	resp.Message = message
	return resp
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
		Message:    err,
	}
}

// ErrorWithCode returns an error response carrying the error kind and optional details
func ErrorWithCode(statusCode int, code, err string, details interface{}) Response {
	resp := Error(statusCode, err)
	resp.Code = code
	resp.Details = details
	return resp
}
