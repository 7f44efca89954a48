package response

// Response represents a standard API response format
type Response struct {
	Status     string      `json:"status"`         // "success" or "error"
	StatusCode int         `json:"status_code"`    // HTTP status code
	Code       string      `json:"code,omitempty"` // error kind, e.g. INVALID_TRANSITION
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

// Failure is an error response that names the error kind and may carry
// partial data, such as an approved submission whose certificate is pending.
func Failure(statusCode int, code, err string, data interface{}) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Code:       code,
		Data:       data,
		Error:      err,
	}
}
