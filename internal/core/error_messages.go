package core

// # Error Codes Reference
//
// This file maps hard failures of an import call to user-friendly messages
// with a code users can quote to support staff. Per-object problems are not
// errors; they are reported in ImportResult.Errors.
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Object limit: The file contains more objects than allowed
//	         Action: Split the export into smaller files
//	         Patterns: "object limit exceeded"
//
//	IMP002 - Malformed stream: A line of the file is not valid JSON
//	         Action: Re-export the objects and upload the unmodified file
//	         Patterns: "malformed import stream"
//
//	IMP003 - Conflicting options: overwrite and createNewCopies together
//	         Action: Choose either overwrite or create new copies
//	         Patterns: "overwrite and createnewcopies"
//
//	IMP004 - System busy: Too many imports in progress
//	         Action: Please wait a moment and try again
//	         Patterns: "too many concurrent imports"
//
//	IMP005 - Line too long: One object exceeds the maximum line size
//	         Action: Check the file was exported as NDJSON
//	         Patterns: "token too long"
//
//	IMP006 - Cancelled: The import request was cancelled
//	         Action: Please try again
//	         Patterns: "context canceled"
//
//	IMP007 - Timed out: The import did not finish in time
//	         Action: Import fewer objects at once
//	         Patterns: "context deadline exceeded"
//
// # Store Errors (ST001-ST099)
//
//	ST001 - Connection refused: Unable to reach the object store
//	ST002 - Connection reset: Store connection was interrupted
//	ST003 - Timeout: Store operation timed out
//	ST004 - Deadlock: Store was busy with conflicting writes
//	ST005 - Busy: Store file is locked by another writer
//	ST006 - Schema: Store tables are missing
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Body too large: Upload exceeds the configured size
//	REQ002 - No file: The request carried no import file
//	REQ003 - Bad parameter: A query parameter could not be parsed
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Rate limited: Too many requests
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Check the application logs for
// the technical error, correlated by request_id.
//
// Patterns are matched case-insensitively with strings.Contains; the first
// match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// Import Errors (IMP001-IMP007)
	// =========================================================================
	{
		pattern: "object limit exceeded",
		msg: UserMessage{
			Message: "The file contains more objects than allowed",
			Action:  "Split the export into smaller files",
			Code:    "IMP001",
		},
	},
	{
		pattern: "malformed import stream",
		msg: UserMessage{
			Message: "The file is not valid NDJSON",
			Action:  "Re-export the objects and upload the unmodified file",
			Code:    "IMP002",
		},
	},
	{
		pattern: "overwrite and createnewcopies",
		msg: UserMessage{
			Message: "Overwrite and create new copies cannot be combined",
			Action:  "Choose either overwrite or create new copies",
			Code:    "IMP003",
		},
	},
	{
		pattern: "too many concurrent imports",
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "IMP004",
		},
	},
	{
		pattern: "token too long",
		msg: UserMessage{
			Message: "An object in the file exceeds the maximum line size",
			Action:  "Check the file was exported as NDJSON",
			Code:    "IMP005",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Import was cancelled",
			Action:  "Please try again",
			Code:    "IMP006",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Import timed out",
			Action:  "Import fewer objects at once",
			Code:    "IMP007",
		},
	},

	// =========================================================================
	// Store Errors (ST001-ST006)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to reach the object store",
			Action:  "Please try again in a few moments",
			Code:    "ST001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Store connection was interrupted",
			Action:  "Please try again",
			Code:    "ST002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Store operation timed out",
			Action:  "Import fewer objects at once or try again later",
			Code:    "ST003",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Store was busy with conflicting writes",
			Action:  "Please try again",
			Code:    "ST004",
		},
	},
	{
		pattern: "database is locked",
		msg: UserMessage{
			Message: "Store is locked by another writer",
			Action:  "Please try again",
			Code:    "ST005",
		},
	},
	{
		pattern: "no such table",
		msg: UserMessage{
			Message: "Store tables are missing",
			Action:  "Contact support to initialise the store",
			Code:    "ST006",
		},
	},

	// =========================================================================
	// Request Errors (REQ001-REQ003)
	// =========================================================================
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "Upload exceeds the maximum size",
			Action:  "Split the export into smaller files",
			Code:    "REQ001",
		},
	},
	{
		pattern: "no import file",
		msg: UserMessage{
			Message: "No file was provided",
			Action:  "Select an NDJSON export file to import",
			Code:    "REQ002",
		},
	},
	{
		pattern: "invalid query parameter",
		msg: UserMessage{
			Message: "A request parameter is invalid",
			Action:  "Check the import options and try again",
			Code:    "REQ003",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the first matching pattern, or the ERR000 fallback.
//
//	msg := MapError(fmt.Errorf("collect: %w", ErrObjectLimitExceeded))
//	// msg.Code == "IMP001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
