package chi

// ErrorCode is the machine-readable error code of an ErrorResponse.
type ErrorCode string

// Error codes returned by the query API.
const (
	ErrorCodeBadRequest           ErrorCode = "bad_request"
	ErrorCodeVersionNotFound      ErrorCode = "version_not_found"
	ErrorCodeResourceTypeNotFound ErrorCode = "resource_type_not_found"
	ErrorCodeResourceNotFound     ErrorCode = "resource_not_found"
	ErrorCodeNotReady             ErrorCode = "not_ready"
	ErrorCodeInternalError        ErrorCode = "internal_error"
	ErrorCodeNotFound             ErrorCode = "not_found"
	ErrorCodeMethodNotAllowed     ErrorCode = "method_not_allowed"
)

// ErrorResponse is the body of every non-2xx API response except /health.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// HealthResponse is returned by /health while the store is not ready.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// GetResourceParams are the query parameters of GET /fhir/{resourceType}.
type GetResourceParams struct {
	// URL is the canonical URL of the resource.
	URL string `form:"url" json:"url"`
	// Version defaults to latest.
	Version *string `form:"version,omitempty" json:"version,omitempty"`
}
