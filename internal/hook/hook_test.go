package hook

import (
	"context"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

func discardLogger() hclog.Logger {
	return hclog.NewNullLogger()
}

func TestRun_EmptyCmdlineIsNoop(t *testing.T) {
	require.NoError(t, Run(context.Background(), Modified, "", discardLogger()))
}

func TestRun_RelativePathRejected(t *testing.T) {
	err := Run(context.Background(), Modified, "echo hi", discardLogger())
	require.Error(t, err)
	var re *ErrRelativePath
	require.ErrorAs(t, err, &re)
}

func TestRun_AbsoluteSucceeds(t *testing.T) {
	err := Run(context.Background(), Ready, "/bin/echo hello", discardLogger())
	require.NoError(t, err)
}

func TestRun_NonZeroExitIsLoggedNotPanicked(t *testing.T) {
	err := Run(context.Background(), Modified, "/bin/false", discardLogger())
	require.Error(t, err) // returned for test/log visibility, but callers never treat it as fatal
}
