package client

// Status values reported by a Result.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the outcome of a completed redirect as delivered by the
// callback service.
//
// Status reflects the authorization outcome: StatusError when the provider
// redirected back with an error, StatusSuccess when it returned a code.
// The service's own wire status only reports that retrieval worked and is
// rewritten during decoding.
type Result struct {
	Status           string `json:"status"`
	State            string `json:"state,omitempty"`
	AuthCode         string `json:"auth_code,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Succeeded reports whether the provider returned an authorization code.
func (r *Result) Succeeded() bool {
	return r.Status == StatusSuccess
}
