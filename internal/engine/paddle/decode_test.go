package paddle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	onnxrt "github.com/yalue/onnxruntime_go"
)

func writeDict(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dict.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCharset(t *testing.T) {
	t.Run("blank at zero, trailing space appended", func(t *testing.T) {
		charset, err := loadCharset(writeDict(t, "a\nb\nc"))
		require.NoError(t, err)
		assert.Equal(t, []string{"", "a", "b", "c", " "}, charset)
	})

	t.Run("strips BOM", func(t *testing.T) {
		charset, err := loadCharset(writeDict(t, "\uFEFFx\ny"))
		require.NoError(t, err)
		assert.Equal(t, []string{"", "x", "y", " "}, charset)
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := loadCharset("")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadCharset("/nonexistent/dict.txt")
		assert.Error(t, err)
	})

	t.Run("empty dictionary", func(t *testing.T) {
		_, err := loadCharset(writeDict(t, ""))
		assert.Error(t, err)
	})
}

// logitsFor builds [1, T, C] logits with a strong peak at each requested
// class index per timestep.
func logitsFor(classes []int, cDim int) ([]float32, onnxrt.Shape) {
	logits := make([]float32, len(classes)*cDim)
	for t, cls := range classes {
		for c := range cDim {
			logits[t*cDim+c] = -5
		}
		logits[t*cDim+cls] = 5
	}
	return logits, onnxrt.NewShape(1, int64(len(classes)), int64(cDim))
}

func TestDecodeGreedyCTC(t *testing.T) {
	charset := []string{"", "a", "b", "c", " "}

	t.Run("collapses repeats and drops blanks", func(t *testing.T) {
		// a a blank b b c -> "abc"
		logits, shape := logitsFor([]int{1, 1, 0, 2, 2, 3}, len(charset))
		text, conf := decodeGreedyCTC(logits, shape, charset)
		assert.Equal(t, "abc", text)
		assert.Greater(t, conf, 0.9)
	})

	t.Run("blank separates repeated characters", func(t *testing.T) {
		// a blank a -> "aa"
		logits, shape := logitsFor([]int{1, 0, 1}, len(charset))
		text, _ := decodeGreedyCTC(logits, shape, charset)
		assert.Equal(t, "aa", text)
	})

	t.Run("all blank yields empty text", func(t *testing.T) {
		logits, shape := logitsFor([]int{0, 0, 0}, len(charset))
		text, conf := decodeGreedyCTC(logits, shape, charset)
		assert.Empty(t, text)
		assert.Zero(t, conf)
	})

	t.Run("malformed shape", func(t *testing.T) {
		text, conf := decodeGreedyCTC([]float32{1, 2, 3}, onnxrt.NewShape(1, 3), nil)
		assert.Empty(t, text)
		assert.Zero(t, conf)
	})
}

func TestArgmax(t *testing.T) {
	idx, val := argmax([]float32{0.1, 3.5, 2.2})
	assert.Equal(t, 1, idx)
	assert.InDelta(t, 3.5, val, 1e-6)

	idx, _ = argmax(nil)
	assert.Equal(t, -1, idx)
}

func TestSoftmaxProb(t *testing.T) {
	t.Run("probability-like input passes through", func(t *testing.T) {
		assert.InDelta(t, 0.7, softmaxProb([]float32{0.1, 0.7, 0.2}, 1), 1e-6)
	})

	t.Run("logits are normalized", func(t *testing.T) {
		p := softmaxProb([]float32{0, 10, 0}, 1)
		assert.Greater(t, p, 0.99)
	})

	t.Run("out of range index", func(t *testing.T) {
		assert.Zero(t, softmaxProb([]float32{1, 2}, 5))
	})
}
