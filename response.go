package toolgram

import (
	"errors"

	"github.com/goccy/go-json"
)

// ErrorCode classifies a failed Response.
type ErrorCode string

const (
	CodeParse        ErrorCode = "parse_error"
	CodeUnknownTool  ErrorCode = "unknown_tool"
	CodeArity        ErrorCode = "arity_error"
	CodeType         ErrorCode = "type_error"
	CodeExecution    ErrorCode = "execution_error"
	CodeTimeout      ErrorCode = "timeout"
	CodeEngine       ErrorCode = "engine_error"
	CodeRegistration ErrorCode = "registration_error"
)

// Response is the outcome of one pipeline request. On success Result and the timings are set;
// on failure Code and Error are.
type Response struct {
	Result        any       `json:"result,omitempty"`
	ElapsedMicros int64     `json:"elapsed_us,omitempty"`
	ParseMicros   int64     `json:"parse_us,omitempty"`
	Code          ErrorCode `json:"code,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// OK reports whether the request succeeded.
func (r Response) OK() bool { return r.Code == "" }

// JSON encodes the response. A result that cannot be encoded is reported as an execution error.
func (r Response) JSON() []byte {
	data, err := json.Marshal(r)
	if err != nil {
		data, _ = json.Marshal(Response{Code: CodeExecution, Error: "result is not JSON encodable: " + err.Error()})
	}
	return data
}

// CodeOf maps an error to its response code. Handler failures map to CodeExecution whatever
// they wrap; errors not produced by toolgram map to CodeEngine.
func CodeOf(err error) ErrorCode {
	var execErr *ExecutionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &execErr):
		return CodeExecution
	case errors.Is(err, ErrParse):
		return CodeParse
	case errors.Is(err, ErrToolNotFound):
		return CodeUnknownTool
	case errors.Is(err, ErrArity):
		return CodeArity
	case errors.Is(err, ErrCoercion):
		return CodeType
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrRegistration):
		return CodeRegistration
	default:
		return CodeEngine
	}
}

// NewErrorResponse builds the failed Response for err.
func NewErrorResponse(err error) Response {
	return Response{Code: CodeOf(err), Error: err.Error()}
}
