package detector

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/nlpodyssey/cybertron/pkg/tasks"
	"github.com/nlpodyssey/cybertron/pkg/tasks/textclassification"
)

// Prediction is the classifier's answer for a single message
type Prediction struct {
	Spam  bool
	Probs [2]float64 // [clean, spam] probabilities, sum to 1
}

// Confidence returns the probability of the predicted class
func (p Prediction) Confidence() float64 {
	if p.Probs[1] > p.Probs[0] {
		return p.Probs[1]
	}
	return p.Probs[0]
}

// abstained is returned when the model can't produce an answer. It never
// contributes a spam signal.
var abstained = Prediction{Spam: false, Probs: [2]float64{0.5, 0.5}}

// Classifier wraps a pre-trained text classification model. The model is
// loaded lazily on first use and kept for the process lifetime; Reset
// drops it so the next prediction picks up an updated model from disk.
type Classifier struct {
	modelsDir string
	modelName string

	mu    sync.Mutex
	model textclassification.Interface

	// loadFn is swappable for tests
	loadFn func() (textclassification.Interface, error)
}

// NewClassifier creates a classifier for the given model. Nothing is
// loaded until the first Predict call.
func NewClassifier(modelsDir, modelName string) *Classifier {
	res := &Classifier{modelsDir: modelsDir, modelName: modelName}
	res.loadFn = res.load
	return res
}

// Predict classifies the text and applies the threshold as a veto: even
// when the model's top class is spam, a spam probability below the
// threshold downgrades the answer to not-spam. Model failures degrade to
// an abstained prediction with both probabilities at 0.5 and are never
// propagated to the caller.
func (c *Classifier) Predict(ctx context.Context, text string, threshold float64) Prediction {
	model, err := c.get()
	if err != nil {
		log.Printf("[WARN] classifier unavailable: %v", err)
		return abstained
	}

	resp, err := model.Classify(ctx, text)
	if err != nil {
		log.Printf("[WARN] classification failed: %v", err)
		return abstained
	}

	spamIdx := spamClassIndex(resp.Labels)
	if spamIdx < 0 || len(resp.Scores) != len(resp.Labels) || len(resp.Labels) < 2 {
		log.Printf("[WARN] unexpected classifier output, labels: %v", resp.Labels)
		return abstained
	}

	spamScore := resp.Scores[spamIdx]
	res := Prediction{Probs: [2]float64{1 - spamScore, spamScore}}
	res.Spam = spamScore >= 0.5 && spamScore >= threshold
	return res
}

// Reset drops the loaded model, the next Predict will reload it
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = nil
	log.Printf("[INFO] classifier model dropped, will reload on next use")
}

func (c *Classifier) get() (textclassification.Interface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.model != nil {
		return c.model, nil
	}
	log.Printf("[INFO] loading classifier model %s from %s", c.modelName, c.modelsDir)
	model, err := c.loadFn()
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", c.modelName, err)
	}
	c.model = model
	return c.model, nil
}

func (c *Classifier) load() (textclassification.Interface, error) {
	return tasks.Load[textclassification.Interface](&tasks.Config{
		ModelsDir:           c.modelsDir,
		ModelName:           c.modelName,
		DownloadPolicy:      tasks.DownloadMissing,
		ConversionPolicy:    tasks.ConvertMissing,
		ConversionPrecision: tasks.F32,
	})
}

// spamClassIndex finds the label representing the spam class. Models in
// the wild label it either with a trailing "1" (LABEL_1) or literally.
func spamClassIndex(labels []string) int {
	for i, label := range labels {
		if strings.HasSuffix(label, "1") || strings.EqualFold(label, "spam") {
			return i
		}
	}
	return -1
}
