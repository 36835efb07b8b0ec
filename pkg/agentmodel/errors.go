package agentmodel

import "errors"

// ErrToolMessageMissingCallID is returned by Message.Validate when a Tool
// role message has no ToolCallID.
var ErrToolMessageMissingCallID = errors.New("tool message missing tool_call_id")
