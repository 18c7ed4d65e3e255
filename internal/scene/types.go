package scene

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Descriptor is one row of the scene table. It is never mutated after loading.
type Descriptor struct {
	// ClipName identifies the scene in logs, events and the status API.
	ClipName string `json:"clip_name"`

	// ClipPath is the video file. A leading "~" is the home directory.
	ClipPath string `json:"clip_path"`

	// LightingCommand is appended to the WLED URL when the scene starts.
	// Empty means no lighting change.
	LightingCommand string `json:"wled_command,omitempty"`

	// FogSteps and WaterSteps are raw timing specs. Empty means absent.
	FogSteps   string `json:"fog_steps,omitempty"`
	WaterSteps string `json:"water_steps,omitempty"`

	// Weight is the relative selection probability. Zero disables the scene.
	Weight int `json:"probability_weight"`
}

// Steps is a parsed timing spec: wait Delay, then alternate On and Off.
type Steps struct {
	Delay time.Duration
	On    time.Duration
	Off   time.Duration
}

// String formats the steps back into the "delay-on-off" seconds form.
func (s Steps) String() string {
	return fmt.Sprintf("%d-%d-%d", int(s.Delay.Seconds()), int(s.On.Seconds()), int(s.Off.Seconds()))
}

// Idle reports whether the cycle never switches on.
func (s Steps) Idle() bool {
	return s.On == 0 && s.Off == 0
}

// stepsSeparator splits a timing spec into its components.
const stepsSeparator = "-"

// ParseSteps parses a "delay-on-off" timing spec in whole seconds.
//
// The result distinguishes three cases:
//   - absent: empty or whitespace-only input returns (nil, nil)
//   - malformed: anything other than exactly three non-negative integers
//     returns (nil, error wrapping ErrMalformedSteps)
//   - valid: returns the parsed Steps
func ParseSteps(raw string) (*Steps, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil //nolint:nilnil // absent is a distinct, valid outcome
	}

	parts := strings.Split(raw, stepsSeparator)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: %q has %d components, need 3", ErrMalformedSteps, raw, len(parts))
	}

	var secs [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q component %d is not an integer", ErrMalformedSteps, raw, i+1)
		}
		secs[i] = n
	}

	return &Steps{
		Delay: time.Duration(secs[0]) * time.Second,
		On:    time.Duration(secs[1]) * time.Second,
		Off:   time.Duration(secs[2]) * time.Second,
	}, nil
}
