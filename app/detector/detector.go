package detector

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Verdict is the fused decision for a message
type Verdict int

// verdicts in order of severity
const (
	Clean   Verdict = iota
	Partial         // suspicious but not confidently spam, no automated action
	Spam
)

func (v Verdict) String() string {
	switch v {
	case Spam:
		return "spam"
	case Partial:
		return "partial"
	default:
		return "clean"
	}
}

// Request is a single message to check
type Request struct {
	Text         string
	UserID       int64
	UserName     string
	WithKeyboard bool // message carries an inline reply markup
}

// Config is a snapshot of the runtime settings relevant to one check.
// The caller builds it from the settings store per message, the detector
// itself holds no mutable configuration.
type Config struct {
	ClassifierThreshold float64
	SureThreshold       float64
	CheckReplyMarkup    bool
	CheckCas            bool
	CheckLols           bool
	EnableLLM           bool
}

// Result carries the verdict and every raw signal that produced it
type Result struct {
	Verdict    Verdict
	Sure       bool // classifier fired with confidence above the sure threshold
	Prediction Prediction
	Cas        Flag
	Lols       Flag
	LLM        Flag
	HasEmail   bool
}

// Details returns a short human-readable list of fired signals, used in
// audit records and notifications.
func (r Result) Details() string {
	var parts []string
	if r.Prediction.Spam {
		parts = append(parts, "classifier")
	}
	if r.HasEmail {
		parts = append(parts, "email")
	}
	if r.Cas == FlagBanned {
		parts = append(parts, "cas")
	}
	if r.Lols == FlagBanned {
		parts = append(parts, "lols")
	}
	if r.LLM == FlagBanned {
		parts = append(parts, "llm")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

// Classifying is the text classifier used by the detector
type Classifying interface {
	Predict(ctx context.Context, text string, threshold float64) Prediction
}

// ReputationChecking covers the external ban list lookups
type ReputationChecking interface {
	CheckCas(ctx context.Context, userID int64) Flag
	CheckLols(ctx context.Context, userID int64) Flag
}

// LLMChecking is the optional LLM-backed check
type LLMChecking interface {
	Check(ctx context.Context, text string) Flag
}

// Detector fuses all spam signals into a single verdict
type Detector struct {
	classifier Classifying
	reputation ReputationChecking
	llm        LLMChecking
}

// New creates a detector with the given collaborators. The llm checker
// may be nil when the LLM check is never enabled.
func New(classifier Classifying, reputation ReputationChecking, llm LLMChecking) *Detector {
	return &Detector{classifier: classifier, reputation: reputation, llm: llm}
}

// Check runs the enabled signals concurrently and fuses them. Decision
// precedence, most severe first:
//   - an inline keyboard on a regular user's message is spam outright
//   - an email address downgrades a classifier hit to partial, and with
//     no classifier hit the email alone clears the message
//   - a classifier hit is spam
//   - a reputation or LLM hit is spam
//
// Sure is set only by the classifier: its top-class confidence must
// exceed the sure threshold. Signal failures never make a message spam,
// a fully degraded check returns a clean verdict.
func (d *Detector) Check(ctx context.Context, req Request, cfg Config) Result {
	res := Result{
		Prediction: abstained,
		HasEmail:   ContainsEmail(req.Text),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res.Prediction = d.classifier.Predict(gctx, Preprocess(req.Text, DefaultOptions()), cfg.ClassifierThreshold)
		return nil
	})
	if cfg.CheckCas {
		g.Go(func() error {
			res.Cas = d.reputation.CheckCas(gctx, req.UserID)
			return nil
		})
	}
	if cfg.CheckLols {
		g.Go(func() error {
			res.Lols = d.reputation.CheckLols(gctx, req.UserID)
			return nil
		})
	}
	if cfg.EnableLLM && d.llm != nil {
		g.Go(func() error {
			res.LLM = d.llm.Check(gctx, req.Text)
			return nil
		})
	}
	_ = g.Wait() // the signal goroutines handle their own failures

	res.Sure = res.Prediction.Spam && res.Prediction.Confidence() > cfg.SureThreshold
	res.Verdict = d.verdict(req, cfg, res)
	return res
}

func (d *Detector) verdict(req Request, cfg Config, res Result) Verdict {
	if cfg.CheckReplyMarkup && req.WithKeyboard {
		return Spam
	}
	if res.HasEmail {
		if res.Prediction.Spam {
			return Partial
		}
		return Clean
	}
	if res.Prediction.Spam {
		return Spam
	}
	if res.Cas == FlagBanned || res.Lols == FlagBanned || res.LLM == FlagBanned {
		return Spam
	}
	return Clean
}
