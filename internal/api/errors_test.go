package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWriteJSONLogsEncodeFailureOnServerLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	rec := httptest.NewRecorder()
	writeJSON(zap.New(core), rec, http.StatusOK, map[string]any{"ch": make(chan int)})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, logs.FilterMessage("write JSON failed").Len())
}
