package modelpkg

import "context"

// Runtime is the black-box ONNX forward-pass collaborator. Its result is
// the model's raw output vector, from which the caller derives the
// predicted class, label, and confidence.
type Runtime interface {
	Forward(ctx context.Context, artifactPath string, input []int32, shape []int) ([]int32, error)
}
