package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nudgexfer/nudge/internal/nudgeerr"
	"github.com/nudgexfer/nudge/internal/transfer"
)

func TestExitCodeForSuccess(t *testing.T) {
	require.Equal(t, 0, exitCodeFor(nil))
}

func TestExitCodeForCancelled(t *testing.T) {
	require.Equal(t, 0, exitCodeFor(transfer.ErrCancelled))
}

func TestExitCodeForHashMismatch(t *testing.T) {
	err := &nudgeerr.HashMismatch{Expected: "aa", Actual: "bb"}
	require.Equal(t, 3, exitCodeFor(err))
}

func TestExitCodeForPassphraseNotFound(t *testing.T) {
	require.Equal(t, 4, exitCodeFor(nudgeerr.ErrPassphraseNotFound))
}

func TestExitCodeForNoPromptExit(t *testing.T) {
	require.Equal(t, 5, exitCodeFor(nudgeerr.ErrNoPromptExit))
}

func TestExitCodeForGenericError(t *testing.T) {
	require.Equal(t, 1, exitCodeFor(errors.New("disk full")))
}
