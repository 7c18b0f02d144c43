package errors

// ERR is the error code carried by every *Error. The numeric values are
// stable: they are reported over the query/submit boundary and must not be
// renumbered between releases.
type ERR int32

const (
	ERR_UNKNOWN          ERR = 0
	ERR_INVALID_ARGUMENT ERR = 1
	ERR_NOT_FOUND        ERR = 2
	ERR_PROCESSING       ERR = 3
	ERR_CONFIGURATION    ERR = 4
	ERR_ERROR            ERR = 9

	// block acceptance
	ERR_BLOCK_NOT_FOUND ERR = 10
	ERR_BLOCK_INVALID   ERR = 11
	ERR_BLOCK_EXISTS    ERR = 12
	ERR_ORPHAN_BLOCK    ERR = 13

	// proof system
	ERR_PROOF_INVALID ERR = 20
	ERR_ROOT_MISMATCH ERR = 21

	// transactions and mempool
	ERR_TX_INVALID      ERR = 30
	ERR_TX_EXISTS       ERR = 31
	ERR_TX_CONFLICT     ERR = 32
	ERR_MEMPOOL_FULL    ERR = 33
	ERR_INVALID_REMOVAL ERR = 34

	// chain state
	ERR_REORG_TOO_DEEP ERR = 40
	ERR_CORRUPT_STATE  ERR = 41

	// storage
	ERR_STORAGE ERR = 50
)

var errNames = map[ERR]string{
	ERR_UNKNOWN:          "ERR_UNKNOWN",
	ERR_INVALID_ARGUMENT: "ERR_INVALID_ARGUMENT",
	ERR_NOT_FOUND:        "ERR_NOT_FOUND",
	ERR_PROCESSING:       "ERR_PROCESSING",
	ERR_CONFIGURATION:    "ERR_CONFIGURATION",
	ERR_ERROR:            "ERR_ERROR",
	ERR_BLOCK_NOT_FOUND:  "ERR_BLOCK_NOT_FOUND",
	ERR_BLOCK_INVALID:    "ERR_BLOCK_INVALID",
	ERR_BLOCK_EXISTS:     "ERR_BLOCK_EXISTS",
	ERR_ORPHAN_BLOCK:     "ERR_ORPHAN_BLOCK",
	ERR_PROOF_INVALID:    "ERR_PROOF_INVALID",
	ERR_ROOT_MISMATCH:    "ERR_ROOT_MISMATCH",
	ERR_TX_INVALID:       "ERR_TX_INVALID",
	ERR_TX_EXISTS:        "ERR_TX_EXISTS",
	ERR_TX_CONFLICT:      "ERR_TX_CONFLICT",
	ERR_MEMPOOL_FULL:     "ERR_MEMPOOL_FULL",
	ERR_INVALID_REMOVAL:  "ERR_INVALID_REMOVAL",
	ERR_REORG_TOO_DEEP:   "ERR_REORG_TOO_DEEP",
	ERR_CORRUPT_STATE:    "ERR_CORRUPT_STATE",
	ERR_STORAGE:          "ERR_STORAGE",
}

func (e ERR) String() string {
	if name, ok := errNames[e]; ok {
		return name
	}

	return "ERR_UNKNOWN"
}

var (
	ErrUnknown         = New(ERR_UNKNOWN, "unknown error")
	ErrInvalidArgument = New(ERR_INVALID_ARGUMENT, "invalid argument")
	ErrNotFound        = New(ERR_NOT_FOUND, "not found")
	ErrProcessing      = New(ERR_PROCESSING, "error processing")
	ErrConfiguration   = New(ERR_CONFIGURATION, "configuration error")
	ErrError           = New(ERR_ERROR, "generic error")
	ErrBlockNotFound   = New(ERR_BLOCK_NOT_FOUND, "block not found")
	ErrBlockInvalid    = New(ERR_BLOCK_INVALID, "block invalid")
	ErrBlockExists     = New(ERR_BLOCK_EXISTS, "block exists")
	ErrOrphanBlock     = New(ERR_ORPHAN_BLOCK, "block predecessor not known")
	ErrProofInvalid    = New(ERR_PROOF_INVALID, "validity proof does not verify")
	ErrRootMismatch    = New(ERR_ROOT_MISMATCH, "accumulator root does not match header commitment")
	ErrTxInvalid       = New(ERR_TX_INVALID, "tx invalid")
	ErrTxExists        = New(ERR_TX_EXISTS, "tx already exists")
	ErrTxConflict      = New(ERR_TX_CONFLICT, "tx conflicts with existing entry")
	ErrMempoolFull     = New(ERR_MEMPOOL_FULL, "mempool capacity exceeded")
	ErrInvalidRemoval  = New(ERR_INVALID_REMOVAL, "removal record does not match a live member")
	ErrReorgTooDeep    = New(ERR_REORG_TOO_DEEP, "reorganization exceeds configured depth")
	ErrCorruptState    = New(ERR_CORRUPT_STATE, "chain state corrupt")
	ErrStorage         = New(ERR_STORAGE, "storage error")
)

// errors initialization functions

func NewUnknownError(message string, params ...interface{}) error {
	return New(ERR_UNKNOWN, message, params...)
}

func NewInvalidArgumentError(message string, params ...interface{}) error {
	return New(ERR_INVALID_ARGUMENT, message, params...)
}

func NewNotFoundError(message string, params ...interface{}) error {
	return New(ERR_NOT_FOUND, message, params...)
}

func NewProcessingError(message string, params ...interface{}) error {
	return New(ERR_PROCESSING, message, params...)
}

func NewConfigurationError(message string, params ...interface{}) error {
	return New(ERR_CONFIGURATION, message, params...)
}

func NewBlockNotFoundError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_NOT_FOUND, message, params...)
}

func NewBlockInvalidError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_INVALID, message, params...)
}

func NewBlockExistsError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_EXISTS, message, params...)
}

func NewOrphanBlockError(message string, params ...interface{}) error {
	return New(ERR_ORPHAN_BLOCK, message, params...)
}

func NewProofInvalidError(message string, params ...interface{}) error {
	return New(ERR_PROOF_INVALID, message, params...)
}

func NewRootMismatchError(message string, params ...interface{}) error {
	return New(ERR_ROOT_MISMATCH, message, params...)
}

func NewTxInvalidError(message string, params ...interface{}) error {
	return New(ERR_TX_INVALID, message, params...)
}

func NewTxExistsError(message string, params ...interface{}) error {
	return New(ERR_TX_EXISTS, message, params...)
}

func NewTxConflictError(message string, params ...interface{}) error {
	return New(ERR_TX_CONFLICT, message, params...)
}

func NewMempoolFullError(message string, params ...interface{}) error {
	return New(ERR_MEMPOOL_FULL, message, params...)
}

func NewInvalidRemovalError(message string, params ...interface{}) error {
	return New(ERR_INVALID_REMOVAL, message, params...)
}

func NewReorgTooDeepError(message string, params ...interface{}) error {
	return New(ERR_REORG_TOO_DEEP, message, params...)
}

func NewCorruptStateError(message string, params ...interface{}) error {
	return New(ERR_CORRUPT_STATE, message, params...)
}

func NewStorageError(message string, params ...interface{}) error {
	return New(ERR_STORAGE, message, params...)
}
