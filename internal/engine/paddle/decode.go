package paddle

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strings"

	onnxrt "github.com/yalue/onnxruntime_go"
)

// blankIndex is the CTC blank class; PP-OCR models reserve index 0.
const blankIndex = 0

// loadCharset reads the dictionary file: one token per line, index order.
// Index 0 is blank, so tokens start at 1.
func loadCharset(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("dictionary path is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer func() { _ = f.Close() }()

	tokens := []string{""} // blank placeholder at index 0
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\uFEFF")
			first = false
		}
		tokens = append(tokens, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	if len(tokens) == 1 {
		return nil, fmt.Errorf("dictionary is empty: %s", path)
	}
	// Recognition models append a trailing space class.
	tokens = append(tokens, " ")
	return tokens, nil
}

// decodeGreedyCTC turns [1, T, C] logits into text by taking the argmax class
// per timestep, collapsing consecutive repeats and dropping blanks. The
// returned confidence is the mean softmax probability of the kept characters.
func decodeGreedyCTC(logits []float32, shape onnxrt.Shape, charset []string) (string, float64) {
	if len(shape) < 3 {
		return "", 0
	}
	tDim := int(shape[1])
	cDim := int(shape[2])
	if tDim <= 0 || cDim <= 0 || len(logits) < tDim*cDim {
		return "", 0
	}

	var sb strings.Builder
	var probSum float64
	var kept int
	prev := -1
	for t := range tDim {
		cls := logits[t*cDim : (t+1)*cDim]
		idx, _ := argmax(cls)
		if idx == blankIndex {
			prev = idx
			continue
		}
		if idx == prev {
			continue
		}
		prev = idx
		if idx < len(charset) {
			sb.WriteString(charset[idx])
		}
		probSum += softmaxProb(cls, idx)
		kept++
	}

	if kept == 0 {
		return "", 0
	}
	return sb.String(), probSum / float64(kept)
}

func argmax(v []float32) (int, float32) {
	if len(v) == 0 {
		return -1, 0
	}
	idx := 0
	maxVal := v[0]
	for i := 1; i < len(v); i++ {
		if v[i] > maxVal {
			maxVal = v[i]
			idx = i
		}
	}
	return idx, maxVal
}

// softmaxProb returns the softmax probability of v[idx]. Outputs that already
// look like probabilities are taken as-is.
func softmaxProb(v []float32, idx int) float64 {
	if idx < 0 || idx >= len(v) {
		return 0
	}
	var sum float64
	minV, maxV := v[0], v[0]
	for _, x := range v {
		sum += float64(x)
		if x < minV {
			minV = x
		}
		if x > maxV {
			maxV = x
		}
	}
	if sum > 0.99 && sum < 1.01 && minV >= 0 && maxV <= 1 {
		return float64(v[idx])
	}
	var denom float64
	for _, x := range v {
		denom += math.Exp(float64(x - maxV))
	}
	if denom == 0 {
		return 0
	}
	return math.Exp(float64(v[idx]-maxV)) / denom
}
