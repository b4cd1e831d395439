package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "explicit transient error",
			err:  &TransientProviderError{Component: "provisioner", Err: errors.New("boom")},
			want: true,
		},
		{
			name: "wrapped transient error",
			err:  fmt.Errorf("handling failed: %w", &TransientProviderError{Err: errors.New("boom")}),
			want: true,
		},
		{
			name: "throttling api error",
			err:  &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"},
			want: true,
		},
		{
			name: "request limit api error",
			err:  &smithy.GenericAPIError{Code: "RequestLimitExceeded", Message: "limit"},
			want: true,
		},
		{
			name: "conflict api error is terminal",
			err:  &smithy.GenericAPIError{Code: "ConflictException", Message: "already exists"},
			want: false,
		},
		{
			name: "validation error is terminal",
			err:  &ValidationError{Component: "resolver", Reason: "bad scope"},
			want: false,
		},
		{
			name: "plain error is terminal",
			err:  errors.New("boom"),
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}
