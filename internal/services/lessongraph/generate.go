package lessongraph

import (
	"fmt"
	"strings"

	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/services/lessonmd"
)

func generateSystemPrompt(spec models.LessonSpec) string {
	lang := spec.Language
	if lang == "" {
		lang = "en"
	}
	return fmt.Sprintf(
		"You are an instructional designer writing one complete lesson in markdown. "+
			"Write every section in language code %q. Audience: %s. Tone: %s. "+
			"Produce a single `#` title, an introductory paragraph, then one `##` heading "+
			"per required section in the order given. Do not add commentary about yourself "+
			"or the writing process.",
		lang, spec.Metadata.Audience, spec.Metadata.Tone)
}

func buildGeneratePrompt(spec models.LessonSpec) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Lesson title: %s\n\n", spec.Title)

	if spec.IntroBlueprint != "" {
		fmt.Fprintf(&sb, "Intro blueprint:\n%s\n\n", spec.IntroBlueprint)
	}

	if len(spec.LearningObjectives) > 0 {
		sb.WriteString("Learning objectives:\n")
		for _, o := range spec.LearningObjectives {
			fmt.Fprintf(&sb, "- (%s) %s\n", o.BloomLevel, o.Statement)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Required sections, in order:\n")
	for _, s := range spec.Sections {
		fmt.Fprintf(&sb, "- %s (archetype: %s, depth: %s)\n", s.SectionID, s.Archetype, s.Depth)
		if len(s.KeyPoints) > 0 {
			fmt.Fprintf(&sb, "  key points: %s\n", strings.Join(s.KeyPoints, "; "))
		}
		if len(s.RequiredKeywords) > 0 {
			fmt.Fprintf(&sb, "  must mention: %s\n", strings.Join(s.RequiredKeywords, ", "))
		}
		if len(s.ProhibitedKeywords) > 0 {
			fmt.Fprintf(&sb, "  must not mention: %s\n", strings.Join(s.ProhibitedKeywords, ", "))
		}
	}

	return sb.String()
}

// splitIntroAndSections is a thin wrapper over lessonmd.Parse for Finalize's
// rendering step.
func splitIntroAndSections(markdown string) (string, []lessonmd.Section) {
	return lessonmd.Parse(markdown)
}
