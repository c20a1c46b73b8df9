package llm

import (
	"context"
	"strings"
)

// StaticGenerator returns a canned care plan document. It backs local
// development when no API key is configured and doubles as a test generator.
type StaticGenerator struct {
	// Content overrides the default document when non-empty.
	Content string
	// Err, when set, is returned instead of content.
	Err error
}

const staticPlan = `1. **Problem List / Drug Therapy Problems (DTPs)**
- Therapy requires verification of indication against the documented diagnoses.

2. **Goals (SMART format)**
- Achieve symptomatic control within 3 months with no dose-limiting adverse effects.

3. **Pharmacist Interventions / Plan**
- Counsel the patient on administration timing and adherence.
- Coordinate baseline assessment with the prescribing provider.

4. **Monitoring Plan & Lab Schedule**
- Review response and adverse effects at each fill; labs per protocol.`

func (s *StaticGenerator) Generate(ctx context.Context, _ string) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	if strings.TrimSpace(s.Content) != "" {
		return s.Content, nil
	}
	return staticPlan, nil
}
