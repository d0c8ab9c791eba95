package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"flowforge/item"
)

func passthrough(ctx context.Context, input *item.Item, config map[string]any) (*item.Item, error) {
	return input.Clone(), nil
}

func TestRegistry_RegisterTask(t *testing.T) {
	tests := []struct {
		name    string
		task    string
		handler Handler
		wantErr error
	}{
		{
			name:    "valid task",
			task:    "passthrough",
			handler: passthrough,
		},
		{
			name:    "empty name",
			task:    "",
			handler: passthrough,
			wantErr: &ErrInvalidTask{},
		},
		{
			name:    "nil handler",
			task:    "broken",
			handler: nil,
			wantErr: &ErrInvalidTask{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()

			err := r.RegisterTask(tt.task, tt.handler)
			if tt.wantErr != nil {
				require.Error(t, err)
				var invalid *ErrInvalidTask
				require.True(t, errors.As(err, &invalid))
				return
			}

			require.NoError(t, err)

			handler, err := r.GetTask(tt.task)
			require.NoError(t, err)
			require.NotNil(t, handler)
		})
	}
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterTask("dup", passthrough))

	err := r.RegisterTask("dup", passthrough)
	require.Error(t, err)

	var already *ErrTaskAlreadyRegistered
	require.True(t, errors.As(err, &already))
}

func TestRegistry_GetUnknownTask(t *testing.T) {
	r := New()

	_, err := r.GetTask("missing")
	require.Error(t, err)

	var notFound *ErrTaskNotFound
	require.True(t, errors.As(err, &notFound))
}
