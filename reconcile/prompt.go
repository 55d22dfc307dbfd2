package reconcile

import (
	"fmt"
	"strings"
)

// UpscalePromptSuffix is appended to the original prompt when chaining the
// upscale pass. Fixed tokens, not user input.
const UpscalePromptSuffix = ", ultra high resolution, sharp focus, intricate details, 4k, professional interior photography"

// BuildDesignPrompt assembles the inference prompt from the submission
// parameters. Empty parameters are skipped so partial forms still produce a
// usable prompt.
func BuildDesignPrompt(prompt, style, roomType, color, material string) string {
	parts := make([]string, 0, 6)

	if roomType != "" {
		parts = append(parts, fmt.Sprintf("a %s", strings.ToLower(roomType)))
	}
	if style != "" {
		parts = append(parts, fmt.Sprintf("in %s style", strings.ToLower(style)))
	}
	if color != "" {
		parts = append(parts, fmt.Sprintf("%s color palette", strings.ToLower(color)))
	}
	if material != "" {
		parts = append(parts, fmt.Sprintf("%s materials", strings.ToLower(material)))
	}
	if prompt != "" {
		parts = append(parts, prompt)
	}
	parts = append(parts, "interior design, photorealistic, high quality render")

	return strings.Join(parts, ", ")
}
