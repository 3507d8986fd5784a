package profile

import (
	"context"
	"log"
	"math"
	"sort"
	"time"

	"github.com/stellarlinkco/persona/internal/provider"
)

const (
	preferenceBlend   = 0.3
	personalityBlend  = 0.2
	maxTopicInterests = 50
	sentimentWindow   = 30 * 24 * time.Hour
)

// LearnFromConversation folds one conversation's worth of events into the
// user's profile. Inference runs against a digest of the current profile so
// it only reports what is new; inference failure degrades to a pure
// statistics update. Trust and relationship level are recomputed on every
// call.
func (s *Store) LearnFromConversation(ctx context.Context, userID string, events []provider.ConversationEvent) (*UserProfile, error) {
	p, err := s.GetOrCreateProfile(userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p.Statistics.TotalInteractions++

	if s.inference != nil && len(events) > 0 {
		insights, err := s.inference.AnalyzeEvents(ctx, events, Digest(p))
		if err != nil {
			log.Printf("[profile] inference degraded for user=%s: %v", userID, err)
		} else {
			s.applyInsights(p, insights, now)
		}
	}

	pruneSentiment(p, now)
	p.Metadata.TrustScore = computeTrust(p)
	p.Metadata.RelationshipLevel = relationshipLevel(p.Statistics.TotalInteractions, p.Metadata.TrustScore)

	if err := s.saveProfile(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) applyInsights(p *UserProfile, insights *provider.Insights, now time.Time) {
	for field, value := range insights.ConfirmedInfo {
		p.Identity.ConfirmedInfo[field] = value
		// A confirmed value supersedes any inference about the same field.
		delete(p.Identity.InferredInfo, field)
	}
	for _, fact := range insights.InferredInfo {
		if _, confirmed := p.Identity.ConfirmedInfo[fact.Field]; confirmed {
			continue
		}
		existing, ok := p.Identity.InferredInfo[fact.Field]
		if ok && existing.Confidence >= fact.Confidence {
			continue
		}
		p.Identity.InferredInfo[fact.Field] = InferredFact{
			Value:      fact.Value,
			Confidence: clampUnit(fact.Confidence),
			Source:     fact.Source,
			UpdatedAt:  now,
		}
	}

	for name, incoming := range insights.Preferences {
		old, ok := p.Preferences.Style[name]
		if !ok {
			old = 0.5
		}
		p.Preferences.Style[name] = clampUnit(old*(1-preferenceBlend) + incoming*preferenceBlend)
	}
	for trait, incoming := range insights.PersonalityTraits {
		old, ok := p.Personality[trait]
		if !ok {
			old = 0.5
		}
		p.Personality[trait] = clampUnit(old*(1-personalityBlend) + incoming*personalityBlend)
	}

	for _, signal := range insights.TopicInterests {
		upsertTopicInterest(p, signal, now)
	}
	sort.SliceStable(p.Preferences.TopicInterests, func(i, j int) bool {
		return p.Preferences.TopicInterests[i].Score > p.Preferences.TopicInterests[j].Score
	})
	if len(p.Preferences.TopicInterests) > maxTopicInterests {
		p.Preferences.TopicInterests = p.Preferences.TopicInterests[:maxTopicInterests]
	}

	if insights.Sentiment != nil {
		p.Statistics.SentimentHistory = append(p.Statistics.SentimentHistory, SentimentSample{
			Value: *insights.Sentiment,
			At:    now,
		})
	}
}

func upsertTopicInterest(p *UserProfile, signal provider.TopicSignal, now time.Time) {
	for i := range p.Preferences.TopicInterests {
		t := &p.Preferences.TopicInterests[i]
		if t.Topic != signal.Topic {
			continue
		}
		t.Score = clampUnit(t.Score*(1-preferenceBlend) + signal.Score*preferenceBlend)
		t.Sentiment = t.Sentiment*(1-preferenceBlend) + signal.Sentiment*preferenceBlend
		t.Mentions++
		t.LastMentioned = now
		return
	}
	p.Preferences.TopicInterests = append(p.Preferences.TopicInterests, TopicInterest{
		Topic:         signal.Topic,
		Score:         clampUnit(signal.Score),
		Sentiment:     signal.Sentiment,
		Mentions:      1,
		LastMentioned: now,
	})
}

func pruneSentiment(p *UserProfile, now time.Time) {
	cutoff := now.Add(-sentimentWindow)
	kept := p.Statistics.SentimentHistory[:0]
	for _, sample := range p.Statistics.SentimentHistory {
		if sample.At.After(cutoff) {
			kept = append(kept, sample)
		}
	}
	p.Statistics.SentimentHistory = kept
}

// computeTrust scores trust from interaction volume, recent sentiment,
// confirmed identity facts, and responsiveness, clamped to [0, 1].
func computeTrust(p *UserProfile) float64 {
	trust := 0.5
	trust += math.Min(0.2, float64(p.Statistics.TotalInteractions)*0.002)
	trust += averageRecentSentiment(p.Statistics.SentimentHistory, 10) * 0.1
	trust += math.Min(0.1, float64(len(p.Identity.ConfirmedInfo))*0.02)
	if p.Statistics.ResponseRate > 0.8 {
		trust += 0.1
	}
	return clampUnit(trust)
}

func averageRecentSentiment(history []SentimentSample, n int) float64 {
	if len(history) == 0 {
		return 0
	}
	start := 0
	if len(history) > n {
		start = len(history) - n
	}
	var sum float64
	for _, sample := range history[start:] {
		sum += sample.Value
	}
	return sum / float64(len(history)-start)
}

// relationshipLevel advances with interaction count, gated by trust.
func relationshipLevel(interactions int, trust float64) string {
	switch {
	case interactions < 5:
		return RelationshipNew
	case interactions < 20 || trust < 0.6:
		return RelationshipFamiliar
	case interactions < 50 || trust < 0.8:
		return RelationshipFriend
	default:
		return RelationshipCollaborator
	}
}
