package provider

import (
	"context"
	"fmt"
	"strings"
)

const EchoProvider = "echo"

// NewEcho returns an offline model that answers with a digest of its input.
// It is used for dry runs and tests.
func NewEcho(_ context.Context, modelID string) (Model, error) {
	return ModelFunc(func(ctx context.Context, req Request) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		first := strings.SplitN(strings.TrimSpace(req.Prompt), "\n", 2)[0]
		return fmt.Sprintf("[%s] %s", modelID, first), nil
	}), nil
}
