package profile

import (
	"fmt"
	"strings"
)

var relationshipDescriptions = map[string]string{
	RelationshipNew:          "a new acquaintance",
	RelationshipFamiliar:     "a familiar contact",
	RelationshipFriend:       "a friend",
	RelationshipCollaborator: "a close collaborator",
}

// Digest renders a short plain-text summary of the profile for prompt
// construction and incremental inference.
func Digest(p *UserProfile) string {
	var b strings.Builder

	if name, ok := p.Identity.ConfirmedInfo["name"]; ok {
		fmt.Fprintf(&b, "Name: %s\n", name)
	}
	desc, ok := relationshipDescriptions[p.Metadata.RelationshipLevel]
	if !ok {
		desc = relationshipDescriptions[RelationshipNew]
	}
	fmt.Fprintf(&b, "Relationship: %s (%d interactions, trust %.2f)\n",
		desc, p.Statistics.TotalInteractions, p.Metadata.TrustScore)

	if len(p.Preferences.TopicInterests) > 0 {
		top := p.Preferences.TopicInterests
		if len(top) > 3 {
			top = top[:3]
		}
		names := make([]string, len(top))
		for i, t := range top {
			names[i] = t.Topic
		}
		fmt.Fprintf(&b, "Interests: %s\n", strings.Join(names, ", "))
	}

	if trait, score := dominantTrait(p.Personality); trait != "" && score > 0.7 {
		fmt.Fprintf(&b, "Notable trait: %s (%.2f)\n", trait, score)
	}
	return strings.TrimRight(b.String(), "\n")
}

func dominantTrait(traits map[string]float64) (string, float64) {
	best := ""
	bestScore := 0.0
	for trait, score := range traits {
		if score > bestScore || (score == bestScore && trait < best) {
			best = trait
			bestScore = score
		}
	}
	return best, bestScore
}
