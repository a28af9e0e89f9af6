package errs

const (
	ErrCode_OK               = 0
	ErrCode_Unknown          = 1
	ErrCode_InvalidDelay     = 100
	ErrCode_InvalidPeriod    = 101
	ErrCode_NilAction        = 102
	ErrCode_DuplicateName    = 103
	ErrCode_ActionFailure    = 200
	ErrCode_ReentrantAdvance = 201
	ErrCode_InvalidConfig    = 300
)

var (
	Unknown          = CreateCodeError(ErrCode_Unknown, "UNKNOWN")
	InvalidDelay     = CreateCodeError(ErrCode_InvalidDelay, "INVALID_DELAY")
	InvalidPeriod    = CreateCodeError(ErrCode_InvalidPeriod, "INVALID_PERIOD")
	NilAction        = CreateCodeError(ErrCode_NilAction, "NIL_ACTION")
	DuplicateName    = CreateCodeError(ErrCode_DuplicateName, "DUPLICATE_NAME")
	ActionFailure    = CreateCodeError(ErrCode_ActionFailure, "ACTION_FAILURE")
	ReentrantAdvance = CreateCodeError(ErrCode_ReentrantAdvance, "REENTRANT_ADVANCE")
	InvalidConfig    = CreateCodeError(ErrCode_InvalidConfig, "INVALID_CONFIG")
)
