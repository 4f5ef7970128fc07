package core

// error_messages.go maps import errors to messages an organizer can act on.
//
// Each message carries a code that can be quoted when asking for help:
//
//	CSV001  The file is not valid CSV (unterminated quote, bad field)
//	CSV002  A row has the wrong number of columns
//	SLOT001 The table-number counter could not be loaded or saved
//	UPL001  The import was cancelled
//	UPL002  Too many imports are running
//	UPL003  The import timed out
//	FILE001 The body exceeds the size limit
//	REQ001  The request body failed validation
//	DB001   Duplicate record
//	DB004   Database unreachable
//	DB006   Database timeout
//	DB007   Deadlock or serialization conflict
//	ERR000  Anything else; check the server log
//
// Typed errors are matched with errors.Is first. Errors coming from drivers
// are matched by case-insensitive substring; the first pattern wins.

import (
	"context"
	"errors"
	"strings"
)

// UserMessage is a user-facing description of an error.
type UserMessage struct {
	Message string
	Action  string
	Code    string
}

var (
	msgMalformed = UserMessage{
		Message: "The file is not valid CSV",
		Action:  "Check for unbalanced quotes and export the file again",
		Code:    "CSV001",
	}
	msgFieldCount = UserMessage{
		Message: "A row has the wrong number of columns",
		Action:  "Fix the row named in the error and upload again",
		Code:    "CSV002",
	}
	msgAllocator = UserMessage{
		Message: "Table numbers could not be assigned",
		Action:  "Please try again in a few moments",
		Code:    "SLOT001",
	}
	msgCancelled = UserMessage{
		Message: "The import was cancelled",
		Action:  "Start the import again when ready",
		Code:    "UPL001",
	}
	msgBusy = UserMessage{
		Message: "Too many imports in progress",
		Action:  "Please wait a moment and try again",
		Code:    "UPL002",
	}
	msgTimeout = UserMessage{
		Message: "The import timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "UPL003",
	}
	msgInvalidRequest = UserMessage{
		Message: "The request is missing required fields",
		Action:  "Fill in every required field",
		Code:    "REQ001",
	}
)

// sentinelMessages is checked in order with errors.Is.
var sentinelMessages = []struct {
	target error
	msg    UserMessage
}{
	{ErrMalformedInput, msgMalformed},
	{ErrFieldCount, msgFieldCount},
	{ErrAllocatorUnavailable, msgAllocator},
	{ErrTooManyImports, msgBusy},
	{ErrInvalidRequest, msgInvalidRequest},
	{context.Canceled, msgCancelled},
	{context.DeadlineExceeded, msgTimeout},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns covers errors that only exist as driver text.
var errorPatterns = []errorPattern{
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Remove the duplicate and try again",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Remove the duplicate and try again",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "database is locked",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller parts",
			Code:    "FILE001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or check the server log",
	Code:    "ERR000",
}

// MapError returns the user message for err. A nil error maps to the zero value.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.target) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}
