package memory

import "strings"

const (
	relevanceNotePool  = 10
	relevanceTopicPool = 15
	relevanceNoteCap   = 5
	relevanceTopicCap  = 8
)

// RelevantContext is the bounded slice of a user's profile judged
// worth putting in front of the model for the current message.
type RelevantContext struct {
	Personality string
	Topics      string
}

// SelectRelevant picks the personality notes and topics that relate
// to the message, then pads with the most recent remainder so the
// output is never empty while any history exists. Matching is a cheap
// substring check on tokens longer than three characters; it has to
// stay O(pool) no matter how much history the user accumulates.
func SelectRelevant(messageText string, notes, topics []string) RelevantContext {
	messageLower := strings.ToLower(messageText)
	messageTokens := strings.Fields(messageLower)

	notePool := lastN(notes, relevanceNotePool)
	topicPool := lastN(topics, relevanceTopicPool)

	var picked []string
	for _, note := range notePool {
		if anyTokenInText(note, messageLower) {
			picked = appendDedup(picked, note)
		}
	}
	picked = padMostRecent(picked, notePool, relevanceNoteCap)

	var pickedTopics []string
	for _, topic := range topicPool {
		topicLower := strings.ToLower(topic)
		if strings.Contains(messageLower, topicLower) || anyTokenInCandidate(messageTokens, topicLower) {
			pickedTopics = appendDedup(pickedTopics, topic)
		}
	}
	pickedTopics = padMostRecent(pickedTopics, topicPool, relevanceTopicCap)

	return RelevantContext{
		Personality: strings.Join(picked, ", "),
		Topics:      strings.Join(pickedTopics, ", "),
	}
}

// anyTokenInText reports whether any >3-char token of the candidate
// appears in the lower-cased message.
func anyTokenInText(candidate, messageLower string) bool {
	for _, token := range strings.Fields(strings.ToLower(candidate)) {
		if len(token) > 3 && strings.Contains(messageLower, token) {
			return true
		}
	}
	return false
}

// anyTokenInCandidate is the reverse direction used for topics: any
// >3-char message token appearing inside the candidate.
func anyTokenInCandidate(messageTokens []string, candidateLower string) bool {
	for _, token := range messageTokens {
		if len(token) > 3 && strings.Contains(candidateLower, token) {
			return true
		}
	}
	return false
}

// padMostRecent fills matched up to limit with the most recent
// unmatched pool entries, newest first.
func padMostRecent(matched, pool []string, limit int) []string {
	for i := len(pool) - 1; i >= 0 && len(matched) < limit; i-- {
		matched = appendDedup(matched, pool[i])
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

func lastN(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[len(list)-n:]
}
