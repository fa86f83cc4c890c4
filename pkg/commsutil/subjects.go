package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectRelay      = "calldef.relay.v1"
	SubjectDispatched = "calldef.dispatched"
	subjectCallPrefix = "calldef"
)

// BuildDispatchedSubject builds a granular dispatched event subject.
func BuildDispatchedSubject(api, operation string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectDispatched, api, operation)
}

// BuildCallSubject builds the subject a gateway worker listens on for an
// operation path. Path separators become subject tokens.
func BuildCallSubject(api, operationPath string) string {
	path := strings.Trim(operationPath, "/")
	path = strings.ReplaceAll(path, ".", "_")
	path = strings.ReplaceAll(path, "/", ".")
	if path == "" {
		return fmt.Sprintf("%s.%s", subjectCallPrefix, api)
	}
	return fmt.Sprintf("%s.%s.%s", subjectCallPrefix, api, path)
}
