package extractor

const systemPrompt = `You are a senior qualitative research analyst. You analyze focus group and interview transcripts and extract structured findings.

You respond with a single JSON object matching the exact schema given in the request. Do not include markdown fences, commentary, or any text outside the JSON object.`

const themesPrompt = `Analyze the following transcript segment and extract the key themes.

For each theme you identify, provide:
1. Theme name (concise, descriptive)
2. Brief description of the theme
3. Key points that support this theme
4. Relevant quotes that illustrate the theme

Focus on themes related to preferences, decision-making factors, pain points and frustrations, convenience and time factors, price and value considerations, and emerging trends.

Transcript segment:
---
%s
---

Respond with valid JSON matching this schema:
{
  "themes": [
    {
      "theme_name": "string",
      "description": "string",
      "key_points": ["string"],
      "related_quotes": ["string"]
    }
  ]
}

Return ONLY the JSON object, no markdown fences or other text.`

const quotesPrompt = `Analyze the following transcript segment and extract the most significant and insightful quotes.

For each quote, identify:
1. The exact quote text
2. The speaker (Moderator, Participant 1, etc.)
3. Context of the quote
4. What theme or topic it relates to
5. Sentiment (positive, negative, neutral, mixed)

Focus on quotes that reveal important insights, express strong opinions, illustrate key pain points or benefits, or demonstrate decision-making processes.

Transcript segment:
---
%s
---

Respond with valid JSON matching this schema:
{
  "quotes": [
    {
      "quote_text": "string",
      "speaker": "string",
      "context": "string",
      "theme_relevance": "string",
      "sentiment": "string"
    }
  ]
}

Return ONLY the JSON object, no markdown fences or other text.`

const patternsPrompt = `Analyze the following transcript segment and identify behavioral, demographic, and frequency patterns.

Look for:
1. BEHAVIORAL PATTERNS - how participants consistently act or decide
2. DEMOGRAPHIC PATTERNS - differences between groups or segments
3. FREQUENCY PATTERNS - topics or concerns mentioned repeatedly
4. SENTIMENT PATTERNS - how attitudes shift across topics
5. DECISION PATTERNS - common processes people follow when choosing
6. TEMPORAL PATTERNS - how behavior changes with time or situation
7. CORRELATION PATTERNS - topics or behaviors that appear together

For each pattern, provide the pattern type, a concise name, a description, how frequently it appears, which speakers exhibit it, and supporting evidence from the text.

Transcript segment:
---
%s
---

Respond with valid JSON matching this schema:
{
  "patterns": [
    {
      "pattern_type": "string",
      "pattern_name": "string",
      "description": "string",
      "frequency_label": "string",
      "segments_involved": ["string"],
      "supporting_evidence": ["string"]
    }
  ]
}

Return ONLY the JSON object, no markdown fences or other text.`

const insightsPrompt = `Based on the following transcript segment, generate actionable insights that would be valuable for research stakeholders.

For each insight, provide:
1. Insight title (clear, actionable)
2. Detailed description of the insight
3. Supporting evidence from the transcript
4. Business implications or recommendations
5. Confidence level (high, medium, low)

Focus on behavior drivers, unmet needs or opportunities, barriers to adoption, group differences, and likely future trends.

Transcript segment:
---
%s
---

Respond with valid JSON matching this schema:
{
  "insights": [
    {
      "insight_title": "string",
      "insight_description": "string",
      "supporting_evidence": ["string"],
      "implications": "string",
      "confidence_level": "string"
    }
  ]
}

Return ONLY the JSON object, no markdown fences or other text.`

func promptFor(kind Kind) string {
	switch kind {
	case KindThemes:
		return themesPrompt
	case KindQuotes:
		return quotesPrompt
	case KindPatterns:
		return patternsPrompt
	case KindInsights:
		return insightsPrompt
	}
	return themesPrompt
}
