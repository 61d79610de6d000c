package autoencoder

import "math"

const (
	seluAlpha = 1.6732632423543772
	seluScale = 1.0507009873554805
)

var activations = map[string]func(float64) float64{
	"":         linear,
	"linear":   linear,
	"relu":     relu,
	"sigmoid":  sigmoid,
	"tanh":     math.Tanh,
	"elu":      elu,
	"selu":     selu,
	"softplus": softplus,
}

func linear(x float64) float64 { return x }

func relu(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func elu(x float64) float64 {
	if x > 0 {
		return x
	}
	return math.Expm1(x)
}

func selu(x float64) float64 {
	if x > 0 {
		return seluScale * x
	}
	return seluScale * seluAlpha * math.Expm1(x)
}

func softplus(x float64) float64 {
	// log1p(exp(x)) overflows for large x
	if x > 30 {
		return x
	}
	return math.Log1p(math.Exp(x))
}
