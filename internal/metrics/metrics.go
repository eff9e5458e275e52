package metrics

import (
	"math"
	"strings"
)

// Labels is the closed answer space for graded responses.
var Labels = []string{"A", "B", "C", "D"}

// Failed is the sentinel recorded when no valid answer could be extracted.
const Failed = "X"

// z for a two-sided 95% interval (alpha = 0.05).
const z95 = 1.959963984540054

// Graded pairs one persisted result's expected and predicted labels.
type Graded struct {
	Expected string
	Answer   string
}

// ClassMetric holds one-vs-rest precision/recall/F1 for a single label.
type ClassMetric struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1-score"`
}

// Summary is the full recomputable metric set for one test.
type Summary struct {
	TotalQuestions         int
	FailedQueries          int
	CorrectAnswers         int
	AccuracyPercentage     float64
	ConfidenceIntervalLow  float64
	ConfidenceIntervalHigh float64
	PrecisionAvg           float64
	RecallAvg              float64
	F1Avg                  float64
	ClassMetrics           map[string]ClassMetric
	AnswerDistribution     map[string]int
}

// Compute derives the summary statistics for a result set. It always starts
// from scratch, so calling it twice on the same input yields identical output.
// Rows whose answer is the "X" sentinel are excluded from accuracy and the
// classification metrics but still count in the answer distribution.
func Compute(results []Graded) *Summary {
	out := &Summary{
		TotalQuestions:     len(results),
		ClassMetrics:       make(map[string]ClassMetric, len(Labels)),
		AnswerDistribution: make(map[string]int),
	}

	var yTrue, yPred []string
	for _, r := range results {
		answer := normalizeLabel(r.Answer)
		out.AnswerDistribution[answer]++
		if answer == Failed {
			out.FailedQueries++
			continue
		}
		yTrue = append(yTrue, normalizeLabel(r.Expected))
		yPred = append(yPred, answer)
	}

	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			out.CorrectAnswers++
		}
	}

	graded := len(yTrue)
	if graded > 0 {
		out.AccuracyPercentage = float64(out.CorrectAnswers) / float64(graded) * 100
	}
	out.ConfidenceIntervalLow, out.ConfidenceIntervalHigh = WilsonInterval(out.CorrectAnswers, graded)

	var precisionSum, recallSum, f1Sum float64
	for _, label := range Labels {
		cm := classMetric(yTrue, yPred, label)
		out.ClassMetrics[label] = cm
		precisionSum += cm.Precision
		recallSum += cm.Recall
		f1Sum += cm.F1
	}
	n := float64(len(Labels))
	out.PrecisionAvg = precisionSum / n
	out.RecallAvg = recallSum / n
	out.F1Avg = f1Sum / n

	return out
}

// WilsonInterval returns the Wilson score interval bounds for the proportion
// correct/total at 95% confidence, expressed as percentages. Returns (0, 0)
// when total is zero.
func WilsonInterval(correct, total int) (low, high float64) {
	if total <= 0 {
		return 0, 0
	}
	if correct < 0 {
		correct = 0
	}
	if correct > total {
		correct = total
	}

	n := float64(total)
	p := float64(correct) / n
	z2 := z95 * z95

	denom := 1 + z2/n
	center := (p + z2/(2*n)) / denom
	margin := z95 * math.Sqrt(p*(1-p)/n+z2/(4*n*n)) / denom

	low = (center - margin) * 100
	high = (center + margin) * 100
	if low < 0 {
		low = 0
	}
	if high > 100 {
		high = 100
	}
	return low, high
}

func classMetric(yTrue, yPred []string, label string) ClassMetric {
	var tp, fp, fn int
	for i := range yTrue {
		switch {
		case yPred[i] == label && yTrue[i] == label:
			tp++
		case yPred[i] == label:
			fp++
		case yTrue[i] == label:
			fn++
		}
	}

	var cm ClassMetric
	if tp+fp > 0 {
		cm.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		cm.Recall = float64(tp) / float64(tp+fn)
	}
	if cm.Precision+cm.Recall > 0 {
		cm.F1 = 2 * cm.Precision * cm.Recall / (cm.Precision + cm.Recall)
	}
	return cm
}

func normalizeLabel(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
