package optimize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

// Profile is a family of prompts that share good default parameters
type Profile struct {
	Category       string
	Keywords       []string
	PromptSuffix   string
	NegativePrompt string
	GuidanceScale  float64
	Steps          int
	// ModelHints are matched as substrings against available model names
	ModelHints []string
}

var profiles = []Profile{
	{
		Category:       "photo",
		Keywords:       []string{"photo", "photograph", "portrait", "realistic", "dslr", "35mm", "headshot", "cinematic"},
		PromptSuffix:   "photorealistic, natural lighting, sharp focus, high detail",
		NegativePrompt: "cartoon, illustration, painting, blurry, lowres, deformed",
		GuidanceScale:  6.5,
		Steps:          35,
		ModelHints:     []string{"realistic", "photo", "sdxl", "flux"},
	},
	{
		Category:       "anime",
		Keywords:       []string{"anime", "manga", "chibi", "cel shaded", "waifu"},
		PromptSuffix:   "anime style, clean line art, vibrant colors",
		NegativePrompt: "photorealistic, 3d render, blurry, extra limbs",
		GuidanceScale:  8,
		Steps:          28,
		ModelHints:     []string{"anime", "anything", "waifu"},
	},
	{
		Category:       "design",
		Keywords:       []string{"logo", "icon", "poster", "flat", "vector", "typography", "banner", "sticker"},
		PromptSuffix:   "clean design, simple shapes, high contrast",
		NegativePrompt: "photo, noisy background, clutter, watermark",
		GuidanceScale:  9,
		Steps:          30,
		ModelHints:     []string{"design", "recraft", "ideogram", "sdxl"},
	},
	{
		Category:       "artistic",
		Keywords:       []string{"painting", "oil", "watercolor", "sketch", "illustration", "fantasy", "surreal", "concept art"},
		PromptSuffix:   "masterpiece, detailed brushwork, rich colors",
		NegativePrompt: "lowres, jpeg artifacts, watermark, text",
		GuidanceScale:  7.5,
		Steps:          40,
		ModelHints:     []string{"art", "dream", "seedream", "sdxl"},
	},
}

var general = Profile{
	Category:       "general",
	PromptSuffix:   "highly detailed, high quality",
	NegativePrompt: "lowres, blurry, watermark, text, deformed",
	GuidanceScale:  7,
	Steps:          30,
}

// Match returns the profile whose keywords best cover the query
func Match(query string) Profile {
	q := strings.ToLower(query)
	best, bestScore := general, 0
	for _, p := range profiles {
		score := 0
		for _, kw := range p.Keywords {
			if strings.Contains(q, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = p, score
		}
	}
	return best
}

// dimensions picks a width and height from orientation words in the query
func dimensions(query string) (int, int, string) {
	q := strings.ToLower(query)
	switch {
	case containsAny(q, "panorama", "banner", "wide", "landscape", "widescreen", "16:9"):
		return 1344, 768, "landscape"
	case containsAny(q, "portrait", "vertical", "phone wallpaper", "poster", "9:16", "full body"):
		return 768, 1344, "portrait"
	}
	return 1024, 1024, "square"
}

// LocalOptimize improves a query with keyword heuristics alone. available
// lists the model names the service offers; it may be empty.
func LocalOptimize(query, model string, available []string) *types.OptimizeResult {
	profile := Match(query)
	width, height, orientation := dimensions(query)

	prompt := strings.TrimSpace(query)
	if prompt != "" && !strings.Contains(strings.ToLower(prompt), strings.ToLower(profile.PromptSuffix)) {
		prompt = strings.TrimRight(prompt, ". ,") + ", " + profile.PromptSuffix
	}

	guidance := profile.GuidanceScale
	steps := profile.Steps
	suggested := suggestModel(profile, available)
	if model == "" {
		model = suggested
	}

	return &types.OptimizeResult{
		Prompt:         prompt,
		NegativePrompt: profile.NegativePrompt,
		Model:          model,
		SuggestedModel: suggested,
		GuidanceScale:  &guidance,
		Steps:          &steps,
		Width:          &width,
		Height:         &height,
		Reason: fmt.Sprintf("local heuristics: %s profile, %s orientation (image service optimizer unavailable)",
			profile.Category, orientation),
		RecommendedParams: map[string]interface{}{
			"guidance_scale": guidance,
			"steps":          steps,
			"width":          width,
			"height":         height,
		},
	}
}

func suggestModel(p Profile, available []string) string {
	if len(available) == 0 {
		return ""
	}
	names := append([]string(nil), available...)
	sort.Strings(names)
	for _, hint := range p.ModelHints {
		for _, name := range names {
			if strings.Contains(strings.ToLower(name), hint) {
				return name
			}
		}
	}
	return names[0]
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
