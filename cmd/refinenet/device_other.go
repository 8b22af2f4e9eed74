//go:build !windows

package main

import (
	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/pkg/errors"

	"github.com/born-ml/refinenet/internal/config"
)

func runOnDevice(cfg *config.Config) error {
	if cfg.Device == "webgpu" {
		return errors.New("the webgpu backend is only available on windows builds")
	}
	return run(cfg, autodiff.New(cpu.New()))
}
