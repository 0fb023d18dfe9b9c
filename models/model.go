package models

import "context"

// Model is implemented by every provider adapter. Tools are declared per
// request so a run can expose its own subset.
type Model interface {
	Model_Request(ctx context.Context, messages []Message, tools []FunctionDeclaration) (Model_Response, error)
	// Stream_Model_Request emits partial responses: text deltas as they arrive
	// and each function call once its arguments are complete. Both channels are
	// closed when the stream ends; at most one error is sent.
	Stream_Model_Request(ctx context.Context, messages []Message, tools []FunctionDeclaration) (<-chan Model_Response, <-chan error)
}
