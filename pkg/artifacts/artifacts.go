// Package artifacts loads the pre-trained scaler and models once at startup.
package artifacts

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/hed1ad/fraudshield/pkg/config"
	"github.com/hed1ad/fraudshield/pkg/detectors"
	"github.com/hed1ad/fraudshield/pkg/detectors/autoencoder"
	"github.com/hed1ad/fraudshield/pkg/detectors/iforest"
	"github.com/hed1ad/fraudshield/pkg/detectors/xgboost"
	"github.com/hed1ad/fraudshield/pkg/features"
	"github.com/hed1ad/fraudshield/pkg/pipeline"
)

// Set is the immutable collection of loaded artifacts.
type Set struct {
	Scaler     features.Scaler
	Classifier detectors.Classifier
	Anomaly    detectors.Scorer

	// Backend names the anomaly model in use.
	Backend string

	// Fingerprint is a SHA-256 over every artifact file, in load order.
	Fingerprint string
}

// Load reads the artifacts described by cfg. Any failure is fatal to the
// caller; no partial set is returned.
func Load(cfg config.Models) (*Set, error) {
	h := sha256.New()
	read := func(name string) ([]byte, error) {
		path := filepath.Join(cfg.Dir, name)
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "error reading artifact: %s", path)
		}
		h.Write(b)
		return b, nil
	}

	b, err := read(cfg.Scaler)
	if err != nil {
		return nil, err
	}
	scaler, err := features.LoadScaler(bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrapf(err, "error loading scaler: %s", cfg.Scaler)
	}

	if b, err = read(cfg.Classifier); err != nil {
		return nil, err
	}
	classifier, err := xgboost.Load(bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrapf(err, "error loading classifier: %s", cfg.Classifier)
	}
	if classifier.NumFeature() != features.NumFeatures {
		return nil, errors.Errorf("classifier expects %d features, want %d", classifier.NumFeature(), features.NumFeatures)
	}

	set := &Set{
		Scaler:     scaler,
		Classifier: classifier,
		Backend:    strings.ToLower(cfg.AnomalyBackend),
	}

	switch set.Backend {
	case config.BackendAutoencoder, "":
		set.Backend = config.BackendAutoencoder
		if b, err = read(cfg.Reconstruction); err != nil {
			return nil, err
		}
		ae, err := autoencoder.Load(bytes.NewReader(b))
		if err != nil {
			return nil, errors.Wrapf(err, "error loading autoencoder: %s", cfg.Reconstruction)
		}
		if ae.InputDim() != features.NumFeatures {
			return nil, errors.Errorf("autoencoder expects %d features, want %d", ae.InputDim(), features.NumFeatures)
		}
		set.Anomaly = ae
	case config.BackendIForest:
		if b, err = read(cfg.IsolationForest); err != nil {
			return nil, err
		}
		forest := iforest.New()
		if err := forest.Load(b); err != nil {
			return nil, errors.Wrapf(err, "error loading isolation forest: %s", cfg.IsolationForest)
		}
		if forest.NumFeatures() != features.NumFeatures {
			return nil, errors.Errorf("isolation forest expects %d features, want %d", forest.NumFeatures(), features.NumFeatures)
		}
		set.Anomaly = forest
	default:
		return nil, errors.Errorf("unknown anomaly backend %q", cfg.AnomalyBackend)
	}

	set.Fingerprint = hex.EncodeToString(h.Sum(nil))

	log.WithFields(log.Fields{
		"dir":         cfg.Dir,
		"backend":     set.Backend,
		"trees":       classifier.NumTrees(),
		"fingerprint": set.Fingerprint[:12],
	}).Info("artifacts loaded")

	return set, nil
}

// Pipeline builds a scoring pipeline over the set.
func (s *Set) Pipeline() (*pipeline.Pipeline, error) {
	return pipeline.New(s.Scaler, s.Classifier, s.Anomaly)
}
