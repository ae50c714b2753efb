package xctest

import (
	"bytes"
	"encoding/json"

	"github.com/devicelab-dev/maestro-device/pkg/core"
)

// InputFieldNotFoundCode is reported when text input finds no focused field.
const InputFieldNotFoundCode = "input-field-not-found"

// ErrorEnvelope is the companion's structured error body.
type ErrorEnvelope struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// EncodeError renders an envelope the way the companion does.
func EncodeError(e ErrorEnvelope) []byte {
	data, _ := json.Marshal(e)
	return data
}

// DecodeError maps an error body to a failure. The snapshot-failure code maps
// to the recoverable variant, any other code to a RemoteError, and anything
// that is not a structured envelope to Unknown.
func DecodeError(body []byte) *core.Failure {
	raw := string(bytes.TrimSpace(body))
	if raw == "" {
		return core.Unknown("error body not available")
	}

	var e ErrorEnvelope
	if err := json.Unmarshal([]byte(raw), &e); err != nil || e.ErrorCode == "" {
		return core.Unknown(raw)
	}
	if e.ErrorCode == core.SnapshotFailureCode {
		return core.SnapshotFailure(e.ErrorMessage)
	}
	return core.RemoteError(e.ErrorCode, e.ErrorMessage)
}
