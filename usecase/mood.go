package usecase

import (
	"regexp"
	"strings"

	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
)

// MoodConfig controls the mood pre-filter.
type MoodConfig struct {
	Enabled     bool
	MusicSource string
}

type moodPreset struct {
	name    string
	pattern *regexp.Regexp
	level   int
}

var (
	moodTrigger = regexp.MustCompile(`\b(mood|vibe|mode|time|night|ambien(ce|t))\b`)
	moodPresets = []moodPreset{
		{"romantic", regexp.MustCompile(`\b(romantic|romance|date)\b`), 25},
		{"movie", regexp.MustCompile(`\b(movie|cinema|film)\b`), 15},
		{"relax", regexp.MustCompile(`\b(relax(ing|ed)?|chill|cozy|calm)\b`), 40},
		{"focus", regexp.MustCompile(`\b(focus|work|study)\b`), 90},
		{"party", regexp.MustCompile(`\b(party|celebrat(e|ion))\b`), 100},
	}
)

// MoodDetector recognizes "set a romantic mood"-style requests.
type MoodDetector struct {
	config MoodConfig
}

// NewMoodDetector creates a detector. A disabled detector never matches.
func NewMoodDetector(config MoodConfig) *MoodDetector {
	return &MoodDetector{config: config}
}

// Detect returns the follow-up plan for a mood request, or false.
func (d *MoodDetector) Detect(transcript string) (*entities.FollowUp, bool) {
	if d == nil || !d.config.Enabled {
		return nil, false
	}
	t := strings.ToLower(transcript)
	if !moodTrigger.MatchString(t) {
		return nil, false
	}
	for _, preset := range moodPresets {
		if preset.pattern.MatchString(t) {
			level := preset.level
			return &entities.FollowUp{
				Kind:        entities.FollowUpMood,
				Mood:        preset.name,
				LightsLevel: &level,
				MusicSource: strings.TrimSpace(d.config.MusicSource),
			}, true
		}
	}
	return nil, false
}

// moodLightsPlan is the room-less plan the mood clarification refines.
func moodLightsPlan(follow *entities.FollowUp) entities.Plan {
	args := map[string]interface{}{}
	if follow.LightsLevel != nil {
		level := *follow.LightsLevel
		if level < 0 {
			level = 0
		}
		if level > 100 {
			level = 100
		}
		args["level"] = level
	}
	return entities.Plan{Tool: "c4_room_lights_set", Args: args}
}
