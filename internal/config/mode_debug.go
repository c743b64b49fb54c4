//go:build debug

package config

const buildMode = ModeDebug
