package executor

import (
	"context"
	"fmt"
	"maps"
)

// EchoType is the type the echo executor is registered under.
const EchoType = "echo"

// Echo returns its parameters as the result. Used for development and smoke tests.
func Echo() Executor {
	return Func(func(ctx context.Context, action Action) (Result, error) {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		return Result{
			Success: true,
			Result:  maps.Clone(action.Parameters),
			Logs:    []string{fmt.Sprintf("echoed %d parameters for %s", len(action.Parameters), action.OwnerID)},
		}, nil
	})
}
