//go:build !linux

package watcher

import (
	"context"
	"errors"

	"github.com/Hara602/devtree/internal/config"
	"github.com/Hara602/devtree/internal/model"
)

var errUnsupported = errors.New("watcher: device events are only available on linux")

type unsupportedWatcher struct{}

func newWatcher(config.Config) DeviceWatcher { return unsupportedWatcher{} }

func (unsupportedWatcher) Start(context.Context) (<-chan model.DeviceEvent, error) {
	return nil, errUnsupported
}

func (unsupportedWatcher) Stop() {}
