package inference

import "fmt"

const analysisPromptFormat = `You are analyzing chat messages to extract structured data for user memory and detect if the bot is being addressed.
The bot's name is %q.

You will be provided with recent conversation context and a specific message to analyze.
Use the conversation context to better understand the topics, sentiment, and whether the message is directed at the bot.
Only analyze the message marked as "MESSAGE TO ANALYZE" - the context is just for reference.

Respond with valid JSON in this exact format:
{
    "metadata": {
        "topics": ["topic1", "topic2"],
        "is_notable": true,
        "notable_reason": "why this interaction is notable (if applicable)",
        "user_insights": ["insight1", "insight2"],
        "sentiment": "positive/neutral/negative",
        "contains_personal_info": true,
        "directed_at_bot_probability": 0.0,
        "bot_direction_reason": "explanation for why this might be directed at the bot"
    }
}

Guidelines:
- Topics: 1-3 relevant keywords about what's being discussed
- Notable if: sharing personal info, emotional content, asking for help, expressing strong opinions, creative content
- User insights: observations about interests, personality, preferences, behavior patterns
- Sentiment: overall emotional tone of the message
- Personal info: if they share details about themselves, their life, preferences, etc.
- directed_at_bot_probability: float 0.0-1.0 indicating likelihood the message is directed at the bot
- bot_direction_reason: brief explanation of why you think it's directed at the bot (or not)

Bot direction detection:
%s

Only return the JSON, no other text.`

const directionRulesDM = `- DIRECT MESSAGE: always set to 1.0 (DMs are always directed at the bot)`

const directionRulesRoomFormat = `- 1.0: direct mention of %q, questions clearly addressed to the bot, direct address
- 0.8-0.9: questions that seem directed at the bot, "you" when the bot context is clear
- 0.6-0.7: general questions that could be for anyone but the bot might answer
- 0.3-0.5: discussing topics related to the bot's capabilities or AI in general
- 0.1-0.2: casual conversation that might include the bot tangentially
- 0.0: clearly not directed at the bot, private conversation between users

IMPORTANT: look specifically for the bot's name (case insensitive) in the message as a strong indicator. When the bot has recently replied, it is more likely the message is directed at it.`

// AnalysisPrompt builds the system instruction for a structured
// extraction call. Direct messages use a fixed probability rule since
// there is no ambiguity about audience.
func AnalysisPrompt(botName string, isDirect bool) string {
	rules := directionRulesDM
	if !isDirect {
		rules = fmt.Sprintf(directionRulesRoomFormat, botName)
	}
	return fmt.Sprintf(analysisPromptFormat, botName, rules)
}
