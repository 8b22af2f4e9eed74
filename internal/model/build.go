package model

import (
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/refinenet/internal/config"
	"github.com/born-ml/refinenet/internal/odenet"
	"github.com/pkg/errors"
)

// FromConfig builds the network named by cfg.Model. Parameters are drawn
// from an Init seeded with cfg.Seed, so equal configs give equal networks.
func FromConfig[B tensor.Backend](cfg *config.Config, backend B) (Network[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	init := odenet.NewInit(cfg.Seed)
	ode := BlockConfig{
		TimeD:      cfg.TimeD,
		NTimeSteps: cfg.NTimeSteps,
		Scheme:     cfg.Scheme,
		UseAdjoint: cfg.UseAdjoint,
		Activation: cfg.ParsedActivation(),
	}
	var (
		m   *ODEModel[B]
		err error
	)
	switch cfg.Model {
	case "dense":
		m, err = NewDense(DenseConfig{
			BlockConfig: ode,
			InDim:       cfg.InDim,
			OutDim:      cfg.OutDim,
			Width:       cfg.Width,
			Hidden:      cfg.Hidden,
		}, init, backend)
	case "conv":
		m, err = NewConv(ConvConfig{
			BlockConfig:  ode,
			InChannels:   cfg.InDim,
			Channels:     cfg.Channels,
			Hidden:       cfg.Hidden,
			ImageSize:    cfg.ImageSize,
			Classes:      cfg.OutDim,
			UseBatchNorm: cfg.UseBatchNorm,
			Epsilon:      cfg.Epsilon,
		}, init, backend)
	case "skip_mlp":
		return NewSkipMLP(cfg.InDim, cfg.Hidden, cfg.ParsedActivation(), init, backend), nil
	default:
		widths := []int{cfg.InDim}
		for i := 0; i < cfg.Depth; i++ {
			widths = append(widths, cfg.Hidden)
		}
		widths = append(widths, cfg.OutDim)
		return NewMLP(widths, cfg.ParsedActivation(), init, backend), nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}
