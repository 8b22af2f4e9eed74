// Package main provides the refinenet CLI.
//
// Usage:
//
//	refinenet train [-config run.yaml] [flags]
//	refinenet version
//
// train builds the model described by the configuration, runs the
// refinement curriculum on a synthetic dataset and prints a per-stage
// summary.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/tensor"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/refinenet/internal/config"
	"github.com/born-ml/refinenet/internal/data"
	"github.com/born-ml/refinenet/internal/loss"
	"github.com/born-ml/refinenet/internal/model"
	"github.com/born-ml/refinenet/internal/train"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "version":
		fmt.Printf("refinenet %s\n", version)
	case "train":
		if err := trainCommand(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "refinenet: %v\n", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("refinenet - ODE-nets trained by progressive time refinement")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  train      Run the refinement curriculum (see train -h)")
	fmt.Println("  version    Show version")
}

func trainCommand(args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	klog.InitFlags(fs)
	configPath := fs.String("config", "", "YAML configuration file; flags override its values")
	config.Default().BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	defer klog.Flush()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := cfg.ApplyFlags(fs); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return runOnDevice(cfg)
}

// dataset returns the synthetic dataset matching the task and model.
func dataset(cfg *config.Config) *data.Dataset {
	switch {
	case cfg.Task == "regress":
		return data.Sine(cfg.Seed, cfg.Samples)
	case cfg.Model == "conv":
		return data.Images(cfg.Seed, cfg.Samples, cfg.InDim, cfg.ImageSize, cfg.ImageSize, cfg.OutDim)
	default:
		return data.Blobs(cfg.Seed, cfg.Samples, cfg.InDim, cfg.OutDim)
	}
}

func run[B tensor.Backend](cfg *config.Config, backend *autodiff.Backend[B]) error {
	trainSet, valSet := dataset(cfg).Split(0.2)
	loader, err := data.NewLoader(trainSet, cfg.BatchSize, true, cfg.Seed, backend)
	if err != nil {
		return errors.Wrap(err, "training data")
	}

	criterionName := loss.CrossEntropyName
	if cfg.Task == "regress" {
		criterionName = loss.MSEName
	}
	criterion, err := loss.New[*autodiff.Backend[B]](criterionName, backend)
	if err != nil {
		return err
	}

	net, err := model.FromConfig[*autodiff.Backend[B]](cfg, backend)
	if err != nil {
		return err
	}

	tr := &train.Trainer[*autodiff.Backend[B]]{
		Backend:    backend,
		Criterion:  criterion,
		PrintEvery: cfg.PrintEvery,
	}
	if valSet.NumSamples() > 0 {
		tr.Eval, err = data.NewLoader(valSet, cfg.BatchSize, false, 0, backend)
		if err != nil {
			return errors.Wrap(err, "validation data")
		}
	}
	if cfg.OutDir != "" {
		tr.Checkpointer, err = train.NewCheckpointer(cfg.OutDir)
		if err != nil {
			return err
		}
		klog.Infof("run %s: checkpoints in %s", tr.Checkpointer.RunID(), cfg.OutDir)
	}

	models, history, err := tr.TrainAdapt(net, loader, cfg.Epochs, cfg.Refines, cfg.LR)
	if err != nil {
		return err
	}

	fmt.Printf("%-6s %-12s %-8s %-12s %-10s\n", "stage", "params", "time_d", "mean loss", "lr")
	for i, m := range models {
		stage := history.Stage(i)
		var mean float32
		for _, v := range stage {
			mean += v
		}
		if len(stage) > 0 {
			mean /= float32(len(stage))
		}
		timeD := m.Metadata()["time_d"]
		if timeD == "" {
			timeD = "-"
		}
		fmt.Printf("%-6d %-12d %-8s %-12.6f %-10g\n",
			i, model.ParameterCount(m), timeD, mean, train.StageLR(cfg.LR, i))
	}
	if tr.Eval != nil {
		final := tr.Evaluate(models[len(models)-1], tr.Eval)
		fmt.Printf("final eval: loss %.6f accuracy %.4f\n", final.Loss, final.Accuracy)
	}
	return nil
}
