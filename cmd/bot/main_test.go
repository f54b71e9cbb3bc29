package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/casino-hub/casino-hub/config"
)

func TestStoreToken(t *testing.T) {
	keyring.MockInit()
	t.Setenv("KEYRING_SERVICE", "casino-hub-cli")

	require.NoError(t, storeToken(strings.NewReader("  777:FROM-STDIN \n")))
	got, err := keyring.Get("casino-hub-cli", config.KeyringUser)
	require.NoError(t, err)
	assert.Equal(t, "777:FROM-STDIN", got)

	assert.Error(t, storeToken(strings.NewReader("\n")))

	t.Setenv("KEYRING_SERVICE", "")
	assert.Error(t, storeToken(strings.NewReader("777:X")))
}

func TestRedactPath(t *testing.T) {
	assert.Equal(t, "/webhook/3f9...", redactPath("/webhook/3f9a0b1c2d"))
	assert.Equal(t, "/hook", redactPath("/hook"))
}
