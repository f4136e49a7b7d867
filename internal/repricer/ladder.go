package repricer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultLadder is 5% off at 7 days up to 20% off at 45 days.
const DefaultLadder = "7:5,14:10,30:15,45:20"

// Step is one rung: Percent off the original price once a listing has been
// active for Days.
type Step struct {
	Days    int
	Percent int
}

// Ladder is a set of steps ordered by Days.
type Ladder []Step

// ParseLadder reads "days:percent" pairs separated by commas. Days must be
// distinct, and the discount must grow with age.
func ParseLadder(spec string) (Ladder, error) {
	var ladder Ladder
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		daysText, percentText, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("ladder step %q: want days:percent", part)
		}
		days, err := strconv.Atoi(strings.TrimSpace(daysText))
		if err != nil || days <= 0 {
			return nil, fmt.Errorf("ladder step %q: invalid days", part)
		}
		percent, err := strconv.Atoi(strings.TrimSpace(percentText))
		if err != nil || percent <= 0 || percent >= 100 {
			return nil, fmt.Errorf("ladder step %q: percent must be between 1 and 99", part)
		}
		ladder = append(ladder, Step{Days: days, Percent: percent})
	}
	if len(ladder) == 0 {
		return nil, fmt.Errorf("ladder %q has no steps", spec)
	}

	sort.Slice(ladder, func(i, j int) bool { return ladder[i].Days < ladder[j].Days })
	for i := 1; i < len(ladder); i++ {
		if ladder[i].Days == ladder[i-1].Days {
			return nil, fmt.Errorf("ladder has two steps at %d days", ladder[i].Days)
		}
		if ladder[i].Percent <= ladder[i-1].Percent {
			return nil, fmt.Errorf("ladder discount must increase with age (%d days)", ladder[i].Days)
		}
	}
	return ladder, nil
}

// StepFor returns the deepest step a listing of daysActive has reached.
func (l Ladder) StepFor(daysActive int) (Step, bool) {
	for i := len(l) - 1; i >= 0; i-- {
		if daysActive >= l[i].Days {
			return l[i], true
		}
	}
	return Step{}, false
}

func (l Ladder) String() string {
	parts := make([]string, len(l))
	for i, s := range l {
		parts[i] = fmt.Sprintf("%d:%d", s.Days, s.Percent)
	}
	return strings.Join(parts, ",")
}
