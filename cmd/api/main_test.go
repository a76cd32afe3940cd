package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iago/market-analysis-back/internal/config"
	"github.com/iago/market-analysis-back/internal/logging"
)

func TestSetupTaskStoreWithoutBackendDisablesMirroring(t *testing.T) {
	logs := &bytes.Buffer{}
	logger := logging.NewWithWriter(logs, "debug")

	store, closeStore := setupTaskStore(context.Background(), config.Config{}, logger)
	defer closeStore()

	assert.Nil(t, store)
	assert.Contains(t, logs.String(), "task mirroring disabled")
}
