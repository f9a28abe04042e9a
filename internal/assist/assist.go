// Package assist talks to the cloud collaborators: a vision model that
// lists obstacles in a camera frame and a maps-grounded assistant that
// answers free-text questions about the user's surroundings.
package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrQuotaExhausted is returned when a collaborator is rate limited. Other
// vision failures degrade to an empty result; assistant failures are returned.
var ErrQuotaExhausted = errors.New("assist: quota exhausted")

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Obstacle is one detection. Direction is a clock position, "12" straight ahead.
type Obstacle struct {
	Label     string   `json:"label"`
	Distance  float64  `json:"distance"`
	Direction string   `json:"direction"`
	Severity  Severity `json:"severity"`
}

type Vision interface {
	Analyze(ctx context.Context, jpeg []byte) ([]Obstacle, error)
}

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Source is one grounding reference behind an answer.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

type Answer struct {
	Text      string   `json:"text"`
	Grounding []Source `json:"grounding,omitempty"`
}

// Assistant answers a query, optionally near a location.
type Assistant interface {
	Ask(ctx context.Context, query string, loc *Location) (Answer, error)
}

// IsQuota recognizes rate limiting from any backend by status or message.
func IsQuota(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExhausted) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource_exhausted")
}

func quota(err error) error {
	return fmt.Errorf("%w: %v", ErrQuotaExhausted, err)
}

// decodeObstacles tolerates an empty body and markdown fences around the JSON.
func decodeObstacles(text string) ([]Obstacle, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	var out []Obstacle
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("decode obstacles: %w", err)
	}

	kept := out[:0]
	for _, o := range out {
		if o.Label == "" {
			continue
		}
		switch o.Severity {
		case SeverityLow, SeverityMedium, SeverityHigh:
		default:
			o.Severity = SeverityLow
		}
		kept = append(kept, o)
	}

	return kept, nil
}
