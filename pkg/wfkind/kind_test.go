// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wfkind

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapAndIs(t *testing.T) {
	cause := errors.New("store offline")
	err := Wrap(KindInfrastructureFailure, "checkpoint.Save", cause)

	require.Error(t, err)
	assert.True(t, Is(err, KindInfrastructureFailure))
	assert.False(t, Is(err, KindNotFound))
	assert.Equal(t, KindInfrastructureFailure, KindOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestKindOfUnwrapped(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{KindTransient, true},
		{KindTimeout, true},
		{KindInfrastructureFailure, true},
		{KindInvalidInput, false},
		{KindAgentFailure, false},
		{KindNotFound, false},
	}
	for _, tc := range cases {
		if got := tc.kind.Retryable(); got != tc.want {
			t.Errorf("%s.Retryable() = %v, want %v", tc.kind, got, tc.want)
		}
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, 400, KindInvalidInput.HTTPStatus())
	assert.Equal(t, 404, KindNotFound.HTTPStatus())
	assert.Equal(t, 409, KindAlreadyTerminal.HTTPStatus())
	assert.Equal(t, 409, KindLockTimeout.HTTPStatus())
	assert.Equal(t, 503, KindAgentFailure.HTTPStatus())
	assert.Equal(t, 499, KindCancelled.HTTPStatus())
}
