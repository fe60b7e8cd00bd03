package model

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
)

// numFeatures is the hashed feature space size (2^18 buckets). Collisions are
// tolerated; the hashing trick keeps artifacts small and inference cheap.
const numFeatures = 1 << 18

// TrainConfig controls BOW training.
type TrainConfig struct {
	// Epochs is the number of SGD passes over the sample set. Default: 5.
	Epochs int

	// LearningRate is the SGD step size. Default: 0.1.
	LearningRate float64

	// L2 is the ridge penalty applied per step. Default: 1e-6.
	L2 float64

	// Seed makes training deterministic for a given sample order.
	Seed int64

	// NGramMin and NGramMax bound the character n-gram lengths.
	// Defaults: 2 and 4.
	NGramMin int
	NGramMax int
}

func (c *TrainConfig) applyDefaults() {
	if c.Epochs <= 0 {
		c.Epochs = 5
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 0.1
	}
	if c.L2 <= 0 {
		c.L2 = 1e-6
	}
	if c.NGramMin <= 0 {
		c.NGramMin = 2
	}
	if c.NGramMax < c.NGramMin {
		c.NGramMax = 4
	}
}

// BOW is a logistic classifier over hashed character n-gram features.
// Weights are stored sparsely; unhit buckets are implicitly zero.
type BOW struct {
	Weights  map[uint32]float64 `json:"weights"`
	Bias     float64            `json:"bias"`
	NGramMin int                `json:"ngram_min"`
	NGramMax int                `json:"ngram_max"`
}

// Score returns the violation probability for text.
func (m *BOW) Score(text string) float64 {
	feats := hashFeatures(text, m.NGramMin, m.NGramMax)
	z := m.Bias
	for bucket, x := range feats {
		z += m.Weights[bucket] * x
	}
	return sigmoid(z)
}

// Train fits a BOW classifier with class-balanced SGD logistic regression.
// Both classes must be present in the sample set.
func Train(samples []TrainingSample, cfg TrainConfig) (*BOW, error) {
	cfg.applyDefaults()

	var positives int
	for _, s := range samples {
		if s.Violation {
			positives++
		}
	}
	negatives := len(samples) - positives
	if positives == 0 || negatives == 0 {
		return nil, fmt.Errorf("model: training needs both classes, got %d violation / %d pass", positives, negatives)
	}

	// Balanced class weights, as in sklearn's class_weight="balanced".
	total := float64(len(samples))
	posWeight := total / (2 * float64(positives))
	negWeight := total / (2 * float64(negatives))

	m := &BOW{
		Weights:  make(map[uint32]float64),
		NGramMin: cfg.NGramMin,
		NGramMax: cfg.NGramMax,
	}

	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		for _, idx := range order {
			s := samples[idx]
			feats := hashFeatures(s.Text, cfg.NGramMin, cfg.NGramMax)

			z := m.Bias
			for bucket, x := range feats {
				z += m.Weights[bucket] * x
			}
			p := sigmoid(z)

			y := 0.0
			w := negWeight
			if s.Violation {
				y = 1.0
				w = posWeight
			}
			grad := w * (p - y)

			for bucket, x := range feats {
				cur := m.Weights[bucket]
				m.Weights[bucket] = cur - cfg.LearningRate*(grad*x+cfg.L2*cur)
			}
			m.Bias -= cfg.LearningRate * grad
		}
	}

	return m, nil
}

// hashFeatures extracts L2-normalized hashed character n-gram counts.
func hashFeatures(text string, nMin, nMax int) map[uint32]float64 {
	runes := []rune(strings.ToLower(text))
	counts := make(map[uint32]float64)

	for n := nMin; n <= nMax; n++ {
		if n > len(runes) {
			break
		}
		for i := 0; i+n <= len(runes); i++ {
			counts[hashNGram(runes[i:i+n])]++
		}
	}

	var norm float64
	for _, c := range counts {
		norm += c * c
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for k := range counts {
			counts[k] /= norm
		}
	}
	return counts
}

func hashNGram(gram []rune) uint32 {
	h := fnv.New32a()
	h.Write([]byte(string(gram)))
	return h.Sum32() % numFeatures
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
