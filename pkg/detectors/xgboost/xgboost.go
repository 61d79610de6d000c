// Package xgboost evaluates gradient-boosted tree classifiers saved in the
// XGBoost native JSON model format.
package xgboost

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hed1ad/fraudshield/pkg/detectors"
)

const (
	objectiveLogistic = "binary:logistic"
	boosterTree       = "gbtree"
	defaultBaseScore  = 0.5
)

var _ detectors.Classifier = (*Model)(nil)

// Model is a loaded binary:logistic tree ensemble. It is immutable after
// Load and safe for concurrent use.
type Model struct {
	trees      []tree
	baseMargin float64
	numFeature int
}

type tree struct {
	nodes []node
}

type node struct {
	left        int
	right       int
	feature     int
	split       float32
	value       float64 // leaf only
	defaultLeft bool
}

func (n node) isLeaf() bool {
	return n.left == -1
}

// Load decodes an XGBoost JSON model.
func Load(r io.Reader) (*Model, error) {
	var f modelFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, errors.Wrap(err, "error decoding xgboost model")
	}
	return f.build()
}

// NumFeature returns the number of input features the model expects.
func (m *Model) NumFeature() int {
	return m.numFeature
}

// NumTrees returns the number of trees used for prediction.
func (m *Model) NumTrees() int {
	return len(m.trees)
}

// Score returns the fraud probability for each sample.
func (m *Model) Score(features [][]float64) ([]float64, error) {
	return m.PredictProba(features)
}

// PredictProba returns P(fraud) for each sample.
func (m *Model) PredictProba(features [][]float64) ([]float64, error) {
	probs := make([]float64, len(features))
	for i, sample := range features {
		margin, err := m.margin(sample)
		if err != nil {
			return nil, errors.Wrapf(err, "sample %d", i)
		}
		probs[i] = sigmoid(margin)
	}
	return probs, nil
}

func (m *Model) margin(sample []float64) (float64, error) {
	if len(sample) != m.numFeature {
		return 0, errors.Errorf("expected %d features, got %d", m.numFeature, len(sample))
	}

	sum := m.baseMargin
	for _, t := range m.trees {
		sum += t.leaf(sample)
	}
	return sum, nil
}

func (t tree) leaf(sample []float64) float64 {
	i := 0
	for {
		n := t.nodes[i]
		if n.isLeaf() {
			return n.value
		}

		x := sample[n.feature]
		switch {
		case math.IsNaN(x):
			if n.defaultLeft {
				i = n.left
			} else {
				i = n.right
			}
		// XGBoost compares in single precision
		case float32(x) < n.split:
			i = n.left
		default:
			i = n.right
		}
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

// modelFile mirrors the parts of the XGBoost JSON schema used for inference.
type modelFile struct {
	Learner struct {
		Attributes map[string]string `json:"attributes"`
		Params     struct {
			BaseScore  string `json:"base_score"`
			NumClass   string `json:"num_class"`
			NumFeature string `json:"num_feature"`
		} `json:"learner_model_param"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
		Booster struct {
			Name  string `json:"name"`
			Model struct {
				Params struct {
					NumParallelTree string `json:"num_parallel_tree"`
				} `json:"gbtree_model_param"`
				Trees []treeFile `json:"trees"`
			} `json:"model"`
		} `json:"gradient_booster"`
	} `json:"learner"`
}

type treeFile struct {
	LeftChildren    []int      `json:"left_children"`
	RightChildren   []int      `json:"right_children"`
	SplitIndices    []int      `json:"split_indices"`
	SplitConditions []float64  `json:"split_conditions"`
	SplitType       []int      `json:"split_type"`
	DefaultLeft     []flexBool `json:"default_left"`
}

const splitNumerical = 0

// flexBool accepts both 0/1 and true/false, which differ across XGBoost releases.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true", "1":
		*b = true
	case "false", "0":
		*b = false
	default:
		return errors.Errorf("invalid boolean %s", data)
	}
	return nil
}

func (f *modelFile) build() (*Model, error) {
	l := f.Learner
	if l.Objective.Name != objectiveLogistic {
		return nil, errors.Errorf("unsupported objective %q, want %s", l.Objective.Name, objectiveLogistic)
	}
	if l.Booster.Name != boosterTree {
		return nil, errors.Errorf("unsupported booster %q, want %s", l.Booster.Name, boosterTree)
	}
	if n, _ := parseNumber(l.Params.NumClass); n > 1 {
		return nil, errors.Errorf("multi-class models are not supported (num_class=%v)", n)
	}

	numFeature, err := parseNumber(l.Params.NumFeature)
	if err != nil || numFeature <= 0 {
		return nil, errors.Errorf("invalid num_feature %q", l.Params.NumFeature)
	}

	baseScore := defaultBaseScore
	if l.Params.BaseScore != "" {
		if baseScore, err = parseNumber(l.Params.BaseScore); err != nil {
			return nil, errors.Wrap(err, "invalid base_score")
		}
	}
	if baseScore <= 0 || baseScore >= 1 {
		return nil, errors.Errorf("base_score %v outside (0, 1)", baseScore)
	}

	files := l.Booster.Model.Trees
	if limit, ok := treeLimit(l.Attributes, l.Booster.Model.Params.NumParallelTree); ok && limit < len(files) {
		files = files[:limit]
	}
	if len(files) == 0 {
		return nil, errors.New("model has no trees")
	}

	m := &Model{
		trees:      make([]tree, len(files)),
		baseMargin: logit(baseScore),
		numFeature: int(numFeature),
	}
	for i, tf := range files {
		t, err := tf.build(m.numFeature)
		if err != nil {
			return nil, errors.Wrapf(err, "tree %d", i)
		}
		m.trees[i] = t
	}
	return m, nil
}

// treeLimit honours early stopping: predictions use only the trees up to the
// recorded best iteration.
func treeLimit(attrs map[string]string, parallel string) (int, bool) {
	best, ok := attrs["best_iteration"]
	if !ok {
		return 0, false
	}
	it, err := strconv.Atoi(best)
	if err != nil || it < 0 {
		return 0, false
	}
	perRound := 1
	if p, err := parseNumber(parallel); err == nil && p >= 1 {
		perRound = int(p)
	}
	return (it + 1) * perRound, true
}

func (tf treeFile) build(numFeature int) (tree, error) {
	n := len(tf.LeftChildren)
	if n == 0 {
		return tree{}, errors.New("empty tree")
	}
	if len(tf.RightChildren) != n || len(tf.SplitIndices) != n || len(tf.SplitConditions) != n {
		return tree{}, errors.New("inconsistent node arrays")
	}
	if len(tf.DefaultLeft) != 0 && len(tf.DefaultLeft) != n {
		return tree{}, errors.New("inconsistent default_left array")
	}
	if len(tf.SplitType) != 0 && len(tf.SplitType) != n {
		return tree{}, errors.New("inconsistent split_type array")
	}

	nodes := make([]node, n)
	for i := range nodes {
		nd := node{
			left:    tf.LeftChildren[i],
			right:   tf.RightChildren[i],
			feature: tf.SplitIndices[i],
			split:   float32(tf.SplitConditions[i]),
			value:   tf.SplitConditions[i],
		}
		if len(tf.DefaultLeft) > 0 {
			nd.defaultLeft = bool(tf.DefaultLeft[i])
		}
		if !nd.isLeaf() {
			if nd.left < 0 || nd.left >= n || nd.right < 0 || nd.right >= n {
				return tree{}, errors.Errorf("node %d has invalid children", i)
			}
			if nd.feature < 0 || nd.feature >= numFeature {
				return tree{}, errors.Errorf("node %d splits on feature %d of %d", i, nd.feature, numFeature)
			}
			if len(tf.SplitType) > 0 && tf.SplitType[i] != splitNumerical {
				return tree{}, errors.Errorf("node %d has unsupported split type %d, only numerical splits are supported", i, tf.SplitType[i])
			}
		}
		nodes[i] = nd
	}

	t := tree{nodes: nodes}
	if err := t.checkAcyclic(); err != nil {
		return tree{}, err
	}
	return t, nil
}

// checkAcyclic verifies every node is reachable from the root at most once,
// so a walk always ends at a leaf.
func (t tree) checkAcyclic() error {
	seen := make([]bool, len(t.nodes))
	stack := []int{0}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[i] {
			return errors.Errorf("node %d is reachable more than once", i)
		}
		seen[i] = true
		if n := t.nodes[i]; !n.isLeaf() {
			stack = append(stack, n.left, n.right)
		}
	}
	return nil
}

// parseNumber reads XGBoost's string-encoded parameters, e.g. "5E-1" or "[5E-1]".
func parseNumber(s string) (float64, error) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	return strconv.ParseFloat(s, 64)
}
