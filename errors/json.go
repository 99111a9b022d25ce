package errors

// ErrorResponse is the flat, serializable form of an error used in IPC
// responses. The cause chain is not included.
type ErrorResponse struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Classification string                 `json:"classification"`
	Context        map[string]interface{} `json:"context,omitempty"`
}

// ToJSON converts err to an ErrorResponse. Non-platform errors are reported
// as CodeUnknown with their Error() text. Returns nil if err is nil.
func ToJSON(err error) *ErrorResponse {
	if err == nil {
		return nil
	}

	var pe PlatformError
	if As(err, &pe) {
		return &ErrorResponse{
			Code:           string(pe.Code()),
			Message:        pe.Message(),
			Classification: string(pe.Classification()),
			Context:        pe.Context(),
		}
	}

	return &ErrorResponse{
		Code:           string(CodeUnknown),
		Message:        err.Error(),
		Classification: string(ClassificationPermanent),
	}
}
