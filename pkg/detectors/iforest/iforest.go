// Package iforest implements the Isolation Forest algorithm as an
// alternative unsupervised anomaly backend.
package iforest

import (
	"bytes"
	"encoding/gob"
	"math"
	"math/rand"
	"sync"

	"github.com/pkg/errors"

	"github.com/hed1ad/fraudshield/pkg/detectors"
)

var _ detectors.Detector = (*IsolationForest)(nil)

// IsolationForest implements unsupervised anomaly detection using isolation trees.
type IsolationForest struct {
	mu sync.RWMutex

	// Configuration
	nTrees     int
	sampleSize int
	maxDepth   int
	rng        *rand.Rand

	// Trained model
	trees     []*Tree
	nFeatures int
	trained   bool

	// Statistics from training
	avgPathLength float64
}

// Tree is a single isolation tree. Fields are exported for gob encoding.
type Tree struct {
	Root *Node
}

// Node is a node in the isolation tree.
type Node struct {
	// Split parameters (for internal nodes)
	SplitFeature int
	SplitValue   float64

	// Children
	Left  *Node
	Right *Node

	// Size is the number of samples that reached this leaf.
	Size int
}

func (n *Node) isLeaf() bool {
	return n.Left == nil && n.Right == nil
}

// snapshot is the serialized form of a trained forest.
type snapshot struct {
	NTrees        int
	SampleSize    int
	NFeatures     int
	AvgPathLength float64
	Trees         []*Tree
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		f.nTrees = n
	}
}

// WithSampleSize sets the subsample size for each tree.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		f.sampleSize = n
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.rng = rand.New(rand.NewSource(seed))
	}
}

// WithConfig applies the shared detector configuration.
func WithConfig(cfg detectors.Config) Option {
	return WithSeed(cfg.RandomSeed)
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) *IsolationForest {
	f := &IsolationForest{
		nTrees:     100,
		sampleSize: 256,
		rng:        rand.New(rand.NewSource(detectors.DefaultConfig().RandomSeed)),
	}

	for _, opt := range opts {
		opt(f)
	}

	f.maxDepth = maxDepth(f.sampleSize)

	return f
}

func maxDepth(sampleSize int) int {
	return int(math.Ceil(math.Log2(float64(sampleSize))))
}

// Fit trains the Isolation Forest on the provided data.
func (f *IsolationForest) Fit(data [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) == 0 {
		return errors.New("empty training data")
	}

	nSamples := len(data)
	nFeatures := len(data[0])
	for i, row := range data {
		if len(row) != nFeatures {
			return errors.Errorf("sample %d: expected %d features, got %d", i, nFeatures, len(row))
		}
	}

	sampleSize := f.sampleSize
	if sampleSize > nSamples {
		sampleSize = nSamples
	}

	f.trees = make([]*Tree, f.nTrees)
	for i := 0; i < f.nTrees; i++ {
		// Sample without replacement
		indices := f.rng.Perm(nSamples)[:sampleSize]
		sample := make([][]float64, sampleSize)
		for j, idx := range indices {
			sample[j] = data[idx]
		}

		f.trees[i] = &Tree{Root: f.buildNode(sample, nFeatures, 0)}
	}

	f.avgPathLength = averagePathLength(float64(sampleSize))
	f.nFeatures = nFeatures
	f.trained = true

	return nil
}

func (f *IsolationForest) buildNode(data [][]float64, nFeatures, depth int) *Node {
	n := len(data)

	if depth >= f.maxDepth || n <= 1 {
		return &Node{Size: n}
	}

	feature := f.rng.Intn(nFeatures)

	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		if row[feature] < minVal {
			minVal = row[feature]
		}
		if row[feature] > maxVal {
			maxVal = row[feature]
		}
	}

	// If all values are the same, return leaf
	if minVal == maxVal {
		return &Node{Size: n}
	}

	splitValue := minVal + f.rng.Float64()*(maxVal-minVal)

	var leftData, rightData [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			leftData = append(leftData, row)
		} else {
			rightData = append(rightData, row)
		}
	}

	return &Node{
		SplitFeature: feature,
		SplitValue:   splitValue,
		Left:         f.buildNode(leftData, nFeatures, depth+1),
		Right:        f.buildNode(rightData, nFeatures, depth+1),
	}
}

// Score returns anomaly scores in (0, 1] for the given samples. Higher is
// more anomalous.
func (f *IsolationForest) Score(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, errors.New("model not trained")
	}

	scores := make([]float64, len(data))
	for i, sample := range data {
		if len(sample) != f.nFeatures {
			return nil, errors.Errorf("sample %d: expected %d features, got %d", i, f.nFeatures, len(sample))
		}
		scores[i] = f.scoreOne(sample)
	}
	return scores, nil
}

// NumFeatures returns the sample width the forest was trained on.
func (f *IsolationForest) NumFeatures() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.nFeatures
}

func (f *IsolationForest) scoreOne(sample []float64) float64 {
	var totalPath float64
	for _, tree := range f.trees {
		totalPath += pathLength(sample, tree.Root, 0)
	}
	avgPath := totalPath / float64(len(f.trees))

	if f.avgPathLength == 0 {
		// trained on a single sample; nothing can be isolated
		return 1
	}
	// Anomaly score: 2^(-avgPath / c(n))
	return math.Pow(2, -avgPath/f.avgPathLength)
}

// pathLength calculates the path length for a sample in a tree.
func pathLength(sample []float64, n *Node, currentDepth int) float64 {
	if n.isLeaf() {
		// Leaf node: add expected path length for remaining isolation
		return float64(currentDepth) + averagePathLength(float64(n.Size))
	}

	if sample[n.SplitFeature] < n.SplitValue {
		return pathLength(sample, n.Left, currentDepth+1)
	}
	return pathLength(sample, n.Right, currentDepth+1)
}

// averagePathLength returns the average path length of unsuccessful search in BST.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	// c(n) = 2*H(n-1) - 2*(n-1)/n, H(n) ~ ln(n) + Euler-Mascheroni constant
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}

// Save serializes the trained model.
func (f *IsolationForest) Save() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, errors.New("model not trained")
	}

	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(snapshot{
		NTrees:        f.nTrees,
		SampleSize:    f.sampleSize,
		NFeatures:     f.nFeatures,
		AvgPathLength: f.avgPathLength,
		Trees:         f.trees,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error encoding isolation forest")
	}

	return buf.Bytes(), nil
}

// Load deserializes a trained model.
func (f *IsolationForest) Load(data []byte) error {
	var s snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return errors.Wrap(err, "error decoding isolation forest")
	}
	if len(s.Trees) == 0 || s.NFeatures <= 0 {
		return errors.New("isolation forest snapshot has no trees")
	}
	for i, t := range s.Trees {
		if err := t.validate(s.NFeatures); err != nil {
			return errors.Wrapf(err, "tree %d", i)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nTrees = s.NTrees
	f.sampleSize = s.SampleSize
	f.nFeatures = s.NFeatures
	f.avgPathLength = s.AvgPathLength
	f.trees = s.Trees
	f.maxDepth = maxDepth(f.sampleSize)
	f.trained = true

	return nil
}

func (t *Tree) validate(nFeatures int) error {
	if t == nil || t.Root == nil {
		return errors.New("empty tree")
	}
	stack := []*Node{t.Root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.isLeaf() {
			continue
		}
		if n.Left == nil || n.Right == nil {
			return errors.New("internal node with one child")
		}
		if n.SplitFeature < 0 || n.SplitFeature >= nFeatures {
			return errors.Errorf("split on feature %d of %d", n.SplitFeature, nFeatures)
		}
		stack = append(stack, n.Left, n.Right)
	}
	return nil
}
