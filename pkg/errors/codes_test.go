package errors

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode_String(t *testing.T) {
	assert.Equal(t, "RXN_003", ErrCodeRXNSubmitFailed.String())
}

func TestHTTPStatusForCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrCodeInternal, 500},
		{ErrCodeValidation, 400},
		{ErrCodeRXNInvalidInput, 400},
		{ErrCodeRXNSubmitFailed, 502},
		{ErrCodeRXNPollFailed, 504},
		{ErrCodeDSCollectionNotFound, 404},
		{ErrCodeRXNNotLoggedIn, 401},
		{ErrorCode("NOPE_999"), 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, HTTPStatusForCode(tt.code), tt.code)
	}
}

func TestDefaultMessageForCode(t *testing.T) {
	assert.Equal(t, "prediction submission failed", DefaultMessageForCode(ErrCodeRXNSubmitFailed))
	assert.Equal(t, "unknown error", DefaultMessageForCode(ErrorCode("NOPE_999")))
}

func TestModuleForCode(t *testing.T) {
	assert.Equal(t, "RXN", ModuleForCode(ErrCodeRXNCacheIO))
	assert.Equal(t, "DS", ModuleForCode(ErrCodeDSQueryFailed))
	assert.Equal(t, "COMMON", ModuleForCode(ErrCodeInternal))
	assert.Equal(t, "UNKNOWN", ModuleForCode(ErrorCode("plain")))
}

func TestEveryCodeHasStatusAndMessage(t *testing.T) {
	pattern := regexp.MustCompile(`^(COMMON|RXN|DS)_\d{3}$`)
	for code := range ErrorCodeHTTPStatus {
		if code == ErrCodeOK {
			continue
		}
		assert.Regexp(t, pattern, string(code))
		_, ok := ErrorCodeMessage[code]
		assert.True(t, ok, "missing message for %s", code)
	}
}
