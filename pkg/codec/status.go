package codec

// Status is the closed result tag a stream step reports.  The rest of
// the engine branches on this, never on raw codec integers.
type Status int

const (
	// StatusOK means the step made progress and the stream can
	// accept more input.
	StatusOK Status = iota
	// StatusStreamEnd means the logical stream is complete; no more
	// input is valid until a reset.
	StatusStreamEnd
	// StatusNeedDict means decompression cannot continue until the
	// preset dictionary is supplied.  It is a required-action
	// signal, not a failure.
	StatusNeedDict
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusStreamEnd:
		return "stream-end"
	case StatusNeedDict:
		return "need-dictionary"
	default:
		return "unknown"
	}
}

// Code mirrors the zlib return-code space.  Codes are carried on
// errors for diagnostics; control flow uses Status and the error
// sentinels instead.
type Code int

const (
	CodeOK           Code = 0
	CodeStreamEnd    Code = 1
	CodeNeedDict     Code = 2
	CodeErrno        Code = -1
	CodeStreamError  Code = -2
	CodeDataError    Code = -3
	CodeMemError     Code = -4
	CodeBufError     Code = -5
	CodeVersionError Code = -6
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeStreamEnd:
		return "stream-end"
	case CodeNeedDict:
		return "need-dictionary"
	case CodeErrno:
		return "errno"
	case CodeStreamError:
		return "stream-error"
	case CodeDataError:
		return "data-error"
	case CodeMemError:
		return "memory-error"
	case CodeBufError:
		return "buffer-error"
	case CodeVersionError:
		return "version-error"
	default:
		return "unknown"
	}
}
