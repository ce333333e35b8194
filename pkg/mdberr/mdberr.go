// Package mdberr defines the flat error taxonomy shared by every MikuDB
// engine component, mirroring mgo's QueryError: a small struct carrying a
// stable Kind plus a human message, instead of one sentinel per package.
package mdberr

import "fmt"

// Kind identifies the class of failure. Callers compare against these
// constants (via errors.Is through Error.Is, or a type switch on Kind)
// rather than matching error strings.
type Kind int

const (
	KindUnknown Kind = iota
	KindIO
	KindInvalidTypeMarker
	KindInvalidUtf8
	KindUnexpectedEOF
	KindInvalidDocument
	KindNestingTooDeep
	KindDocumentTooLarge
	KindInvalidObjectID
	KindCorruption
	KindCollectionNotFound
	KindCollectionExists
	KindDocumentNotFound
	KindDocumentExists
	KindStorageFull
	KindSyntax
	KindParse
	KindUnknownKeyword
	KindInvalidOperator
	KindInvalidFieldPath
	KindTypeError
	KindExecution
	KindTransaction
	KindWriteConflict
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "Io"
	case KindInvalidTypeMarker:
		return "InvalidTypeMarker"
	case KindInvalidUtf8:
		return "InvalidUtf8"
	case KindUnexpectedEOF:
		return "UnexpectedEof"
	case KindInvalidDocument:
		return "InvalidDocument"
	case KindNestingTooDeep:
		return "NestingTooDeep"
	case KindDocumentTooLarge:
		return "DocumentTooLarge"
	case KindInvalidObjectID:
		return "InvalidObjectId"
	case KindCorruption:
		return "Corruption"
	case KindCollectionNotFound:
		return "CollectionNotFound"
	case KindCollectionExists:
		return "CollectionExists"
	case KindDocumentNotFound:
		return "DocumentNotFound"
	case KindDocumentExists:
		return "DocumentExists"
	case KindStorageFull:
		return "StorageFull"
	case KindSyntax:
		return "Syntax"
	case KindParse:
		return "Parse"
	case KindUnknownKeyword:
		return "UnknownKeyword"
	case KindInvalidOperator:
		return "InvalidOperator"
	case KindInvalidFieldPath:
		return "InvalidFieldPath"
	case KindTypeError:
		return "TypeError"
	case KindExecution:
		return "Execution"
	case KindTransaction:
		return "Transaction"
	case KindWriteConflict:
		return "WriteConflict"
	case KindTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// Error is the single error type returned across MikuDB's core packages.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Position is set by parser errors (§4.6 Parse{position, message}).
	Position int
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, &Error{Kind: KindDocumentNotFound}) match on Kind
// alone, regardless of Message/Cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an *Error with the given kind and formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error that preserves cause for %w-style unwrapping.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Of returns the Kind of err if it is (or wraps) an *Error, else KindUnknown.
func Of(err error) Kind {
	var e *Error
	if as(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
