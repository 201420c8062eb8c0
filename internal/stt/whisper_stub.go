//go:build !whisper

package stt

import (
	"fmt"

	"murmur/internal/config"

	"github.com/sirupsen/logrus"
)

func newLocalBackend(*config.Config, *logrus.Logger) (Backend, error) {
	return nil, fmt.Errorf("built without whisper support; rebuild with -tags whisper or switch to an API backend")
}
