// Package detectors defines the capability interfaces shared by the scoring
// model backends.
package detectors

// Scorer is the common interface for every model backend used by the
// scoring pipeline. It maps feature rows to one signal per row.
type Scorer interface {
	// Score returns one value per row of features.
	// features is a 2D slice where each row is a sample and each column is a feature.
	// Implementations must not modify features or their own state.
	Score(features [][]float64) ([]float64, error)
}

// Classifier returns the probability of the positive (fraud) class.
type Classifier interface {
	Scorer

	// PredictProba returns P(fraud) in [0, 1] for each sample.
	PredictProba(features [][]float64) ([]float64, error)
}

// Reconstructor maps samples to their reconstruction.
type Reconstructor interface {
	Scorer

	// Reconstruct returns the reconstruction of each sample.
	Reconstruct(features [][]float64) ([][]float64, error)
}

// Detector is implemented by backends that can be trained in process.
type Detector interface {
	Scorer

	// Fit trains the detector on historical data.
	Fit(data [][]float64) error

	// Save serializes the trained model to bytes.
	Save() ([]byte, error)

	// Load deserializes a trained model from bytes.
	Load(data []byte) error
}

// Config holds common configuration for trainable detectors.
type Config struct {
	// RandomSeed for reproducible training.
	RandomSeed int64
}

// DefaultConfig returns the default detector configuration.
func DefaultConfig() Config {
	return Config{RandomSeed: 42}
}
