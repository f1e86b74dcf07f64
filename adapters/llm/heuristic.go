package llm

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/randybritsch/c4-mcp-app-sub000/domain"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/repositories"
)

// HeuristicPlanner recognizes a narrow set of canned phrasings without a model.
type HeuristicPlanner struct{}

// NewHeuristicPlanner creates the pattern-matching planner.
func NewHeuristicPlanner() *HeuristicPlanner {
	return &HeuristicPlanner{}
}

type heuristicRule struct {
	pattern *regexp.Regexp
	build   func(m []string) entities.Plan
}

var (
	reListRooms  = regexp.MustCompile(`^(?:list|show|what are)(?: me)?(?: all)?(?: the| my)? rooms$`)
	rePresence   = regexp.MustCompile(`^(?:i'm|i am|im) (?:in|at) (?:the )?(.+)$`)
	reTVOff      = regexp.MustCompile(`^(?:turn|switch|shut) (?:off (?:the )?(?:tv|television)|(?:the )?(?:tv|television) off)$`)
	reRemote     = regexp.MustCompile(`^(mute|unmute|pause|play|resume|stop)(?: the)?(?: tv| television| music)?$`)
	reVolume     = regexp.MustCompile(`^(?:turn )?(?:the )?volume (up|down)$|^turn (?:it|the volume) (up|down)$`)
	reLightLevel = regexp.MustCompile(`^(?:set|dim|brighten) (?:the )?(.*?) ?lights? to (\d{1,3})(?: ?%| percent)?$`)
	reLightsOn1  = regexp.MustCompile(`^turn (on|off) (?:all )?(?:the )?(.*?) ?(?:lights?|lamps?)$`)
	reLightsOn2  = regexp.MustCompile(`^turn (?:all )?(?:the )?(.*?) ?(?:lights?|lamps?) (on|off)$`)
	reWatch      = regexp.MustCompile(`^watch (?:the )?(.+?)(?: in (?:the )?(.+))?$`)
	reScene      = regexp.MustCompile(`^(?:activate|run|start) (?:the )?(.+?)(?: scene)?$`)
	reTrailing   = regexp.MustCompile(`[.!?,]+$`)
)

var remoteButtons = map[string]string{
	"mute":   "mute",
	"unmute": "mute",
	"pause":  "pause",
	"play":   "play",
	"resume": "play",
	"stop":   "stop",
}

var heuristicRules = []heuristicRule{
	{pattern: reListRooms, build: func(m []string) entities.Plan {
		return entities.Plan{Tool: "c4_list_rooms", Args: map[string]interface{}{}}
	}},
	{pattern: reTVOff, build: func(m []string) entities.Plan {
		return entities.Plan{Tool: "c4_tv_off_last", Args: map[string]interface{}{}}
	}},
	{pattern: rePresence, build: func(m []string) entities.Plan {
		return entities.Plan{Tool: "c4_room_presence_report", Args: map[string]interface{}{"room_name": titleCase(m[1])}}
	}},
	{pattern: reRemote, build: func(m []string) entities.Plan {
		return entities.Plan{Tool: "c4_tv_remote_last", Args: map[string]interface{}{"button": remoteButtons[m[1]]}}
	}},
	{pattern: reVolume, build: func(m []string) entities.Plan {
		dir := m[1]
		if dir == "" {
			dir = m[2]
		}
		return entities.Plan{Tool: "c4_tv_remote_last", Args: map[string]interface{}{"button": "volume_" + dir}}
	}},
	{pattern: reLightLevel, build: func(m []string) entities.Plan {
		level, _ := strconv.Atoi(m[2])
		if level > 100 {
			level = 100
		}
		return lightsPlan(m[1], map[string]interface{}{"level": level})
	}},
	{pattern: reLightsOn1, build: func(m []string) entities.Plan {
		return lightsPlan(m[2], map[string]interface{}{"state": m[1]})
	}},
	{pattern: reLightsOn2, build: func(m []string) entities.Plan {
		return lightsPlan(m[1], map[string]interface{}{"state": m[2]})
	}},
	{pattern: reWatch, build: func(m []string) entities.Plan {
		args := map[string]interface{}{"source_device_name": titleCase(m[1])}
		if strings.TrimSpace(m[2]) != "" {
			args["room_name"] = titleCase(m[2])
		}
		return entities.Plan{Tool: "c4_tv_watch_by_name", Args: args}
	}},
	{pattern: reScene, build: func(m []string) entities.Plan {
		return entities.Plan{Tool: "c4_scene_activate_by_name", Args: map[string]interface{}{"scene_name": titleCase(m[1])}}
	}},
}

func lightsPlan(room string, args map[string]interface{}) entities.Plan {
	room = strings.TrimSpace(room)
	if room != "" && room != "all" {
		args["room_name"] = titleCase(room)
	}
	return entities.Plan{Tool: "c4_room_lights_set", Args: args}
}

// Name implements repositories.Planner
func (h *HeuristicPlanner) Name() string {
	return "heuristic"
}

// Plan implements repositories.Planner
func (h *HeuristicPlanner) Plan(ctx context.Context, transcript string, planCtx repositories.PlanContext) (entities.Plan, error) {
	text := strings.ToLower(strings.TrimSpace(transcript))
	text = strings.ReplaceAll(text, "’", "'")
	text = reTrailing.ReplaceAllString(text, "")
	text = strings.Join(strings.Fields(text), " ")
	text = strings.TrimPrefix(text, "please ")

	if text == "" {
		return entities.Plan{}, domain.UserInputError(domain.CodeInvalidTranscript, "Transcript is empty")
	}

	for _, rule := range heuristicRules {
		if m := rule.pattern.FindStringSubmatch(text); m != nil {
			return rule.build(m), nil
		}
	}
	return entities.Plan{}, domain.UserInputError(domain.CodeIntentNotUnderstood, "Could not understand the command")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
