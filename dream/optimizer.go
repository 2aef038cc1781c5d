package dream

import (
	"fmt"

	"github.com/becomeliminal/reverie/genai"
	"github.com/becomeliminal/reverie/memory"
)

// optimizer decides between stages whether finishing the cycle is
// worth it. Each stage reports a value in [0,1]; the cycle stops when a
// value drops below the floor or below the previous stage's value.
type optimizer struct {
	enabled bool
	floor   float64
	prev    float64
}

func newOptimizer(enabled bool, floor float64) *optimizer {
	return &optimizer{enabled: enabled, floor: floor}
}

// check evaluates the value a stage just realized. It returns a
// termination reason and true when the remaining stages should be
// skipped.
func (o *optimizer) check(stage string, value float64) (string, bool) {
	if !o.enabled {
		return "", false
	}
	if value < o.floor {
		return fmt.Sprintf("%s value %.2f below floor %.2f", stage, value, o.floor), true
	}
	if o.prev > 0 && value < o.prev {
		return fmt.Sprintf("%s value %.2f declined from %.2f", stage, value, o.prev), true
	}
	o.prev = value
	return "", false
}

// selectionValue scales with the unprocessed backlog; ten or more
// pending memories saturate it.
func selectionValue(unprocessed int) float64 {
	return capped(float64(unprocessed) / 10)
}

// consolidationValue scales with the number of similarity groups; five
// groups saturate it.
func consolidationValue(groups [][]memory.Memory) float64 {
	return capped(float64(len(groups)) / 5)
}

// hypothesisValue weighs scenario count against mean probability. With
// no scenarios the probability term defaults to the midpoint.
func hypothesisValue(scenarios []genai.Scenario) float64 {
	meanProb := 0.5
	if len(scenarios) > 0 {
		sum := 0.0
		for _, sc := range scenarios {
			sum += sc.Probability
		}
		meanProb = sum / float64(len(scenarios))
	}
	return 0.7*capped(float64(len(scenarios))/4) + 0.3*meanProb
}

// insightValue weighs insight count against mean value. No insights at
// all is nearly worthless.
func insightValue(insights []genai.Insight) float64 {
	if len(insights) == 0 {
		return 0.1
	}
	sum := 0.0
	for _, in := range insights {
		sum += in.Value
	}
	return 0.4*capped(float64(len(insights))/3) + 0.6*sum/float64(len(insights))
}

func capped(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
