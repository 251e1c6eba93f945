package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"posledger/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	require.Error(t, validateSecurityConfig(config.Config{AuthSecret: "short"}))
	require.Error(t, validateSecurityConfig(config.Config{
		Env:           "production",
		AuthSecret:    "0123456789abcdef0123456789abcdef",
		AllowedOrigin: "*",
	}))
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	require.NoError(t, validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"}))
	require.NoError(t, validateSecurityConfig(config.Config{
		Env:           "production",
		AuthSecret:    "0123456789abcdef0123456789abcdef",
		AllowedOrigin: "https://pos.example.com",
	}))
}
