//go:build windows

package main

import (
	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/backend/webgpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/refinenet/internal/config"
)

func runOnDevice(cfg *config.Config) error {
	if cfg.Device != "webgpu" {
		return run(cfg, autodiff.New(cpu.New()))
	}
	if !webgpu.IsAvailable() {
		return errors.New("webgpu requested but no adapter is available")
	}
	gpu, err := webgpu.New()
	if err != nil {
		return errors.Wrap(err, "create webgpu backend")
	}
	defer gpu.Release()
	klog.Infof("using webgpu backend")
	return run(cfg, autodiff.New(gpu))
}
