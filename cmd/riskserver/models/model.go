// Package models builds the risk server's artifact set and classifier from
// configuration.
package models

import (
	"log/slog"

	"github.com/HatiCode/glucoguard/cmd/riskserver/config"
	"github.com/HatiCode/glucoguard/pkg/artifacts"
	"github.com/HatiCode/glucoguard/pkg/httpx"
	"github.com/HatiCode/glucoguard/pkg/models"
)

// New loads the artifact bundle and attaches the configured classifier.
// The returned set has been compiled once, so a mismatch surfaces here as
// *errs.ArtifactMismatchError rather than on the first request.
func New(cfg *config.Config, logger *slog.Logger) (*artifacts.Set, error) {
	set, err := artifacts.Load(cfg.Artifacts)
	if err != nil {
		return nil, err
	}
	return Configure(set, cfg, logger)
}

// Configure applies the classifier settings in cfg to a parsed set.
func Configure(set *artifacts.Set, cfg *config.Config, logger *slog.Logger) (*artifacts.Set, error) {
	compiled, err := set.Compile()
	if err != nil {
		return nil, err
	}

	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = set.Spec.Threshold
	}

	switch cfg.Classifier {
	case config.ClassifierBYOM:
		client, err := httpx.NewClient(cfg.BYOMTLS, cfg.BYOMTimeout)
		if err != nil {
			return nil, err
		}
		dim := compiled.Pipeline.OutputDim()
		logger.Info("initializing BYOM classifier",
			"url", cfg.BYOMURL,
			"input_dim", dim,
			"threshold", threshold,
			"tls", cfg.BYOMTLS.Enabled,
		)
		return set.WithClassifier(models.NewBYOMModel(cfg.BYOMURL, dim, threshold).WithClient(client)), nil

	default:
		if cfg.Threshold == 0 {
			logger.Info("initializing logistic classifier", "version", set.Version)
			return set, nil
		}
		classifier, err := set.Spec.Build(cfg.Threshold)
		if err != nil {
			return nil, err
		}
		logger.Info("initializing logistic classifier",
			"version", set.Version,
			"threshold", cfg.Threshold,
		)
		return set.WithClassifier(classifier), nil
	}
}
