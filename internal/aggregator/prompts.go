package aggregator

const summarySystemPrompt = `You are a senior qualitative research analyst writing an executive summary of a completed study analysis.

You respond with a single JSON object matching the exact schema given in the request. Do not include markdown fences, commentary, or any text outside the JSON object.`

const summaryPrompt = `The consolidated analysis of a qualitative study is listed below. Write an executive summary for research stakeholders.

Consolidated themes (ranked by frequency):
%s

Representative quotes:
%s

Summary statistics: %d themes, %d quotes, %d insights, %d patterns across %d analyzed segments.

Respond with valid JSON matching this schema:
{
  "executive_summary": {
    "overview": "string",
    "key_findings": ["string"],
    "overall_sentiment": "positive|negative|neutral|mixed",
    "primary_themes": ["string"],
    "business_implications": ["string"],
    "recommendations": ["string"]
  }
}

Return ONLY the JSON object, no markdown fences or other text.`

const insightsPrompt = `The consolidated analysis of a qualitative study is listed below. Merge and refine the per-segment insights into a ranked list of actionable study-level insights. Combine duplicates, drop trivia, and keep only findings a stakeholder could act on.

Consolidated themes (ranked by frequency):
%s

Per-segment insights:
%s

Respond with valid JSON matching this schema:
{
  "actionable_insights": [
    {
      "insight_title": "string",
      "insight_description": "string",
      "recommended_actions": ["string"],
      "supporting_evidence": ["string"],
      "confidence_level": "high|medium|low"
    }
  ]
}

Return ONLY the JSON object, no markdown fences or other text.`
