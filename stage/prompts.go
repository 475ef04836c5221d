package stage

import (
	"fmt"
	"strings"

	"github.com/hupe1980/deepresearch/core"
	"github.com/hupe1980/deepresearch/internal/util"
	"github.com/hupe1980/deepresearch/search"
)

const plannerSystemPrompt = `You are a research planning expert. Your job is to analyze user queries and create comprehensive research plans.

Given a user's research question, you must:
1. Decompose it into 3-6 focused sub-questions that cover all aspects of the query
2. For each sub-question, generate 2-4 specific search queries that will find relevant information
3. Assign priority rankings (1 = highest priority) to guide research sequence

Guidelines:
- Sub-questions should be specific, focused, and non-overlapping
- Cover different angles: factual data, expert opinions, case studies, trends, risks, opportunities
- Search queries should be concrete and optimized for web search
- Higher priority (1, 2) for foundational questions; lower priority for nuanced/follow-up questions
- If the query is ambiguous, make reasonable assumptions and note them

Return your response as a JSON object with this exact structure:
{
    "sub_questions": [
        {
            "id": "sq1",
            "question": "What are the main...",
            "search_queries": ["query 1", "query 2", "query 3"],
            "priority": 1
        },
        ...
    ]
}

Be thorough but focused. Quality over quantity.`

const researcherSystemPrompt = `You are a research analyst expert at extracting insights from web search results.

Given a sub-question and search results, you must:
1. Extract 4-8 evidence bullets that directly answer the sub-question
2. Identify any contradictions, uncertainties, or data gaps
3. Note any open questions that require further investigation

Guidelines:
- Evidence bullets should be specific, factual, and well-sourced
- Include quantitative data when available (numbers, percentages, dates)
- Note conflicting information or uncertainty
- Be concise but informative
- Focus on relevance to the sub-question

Return your analysis as a JSON object:
{
    "evidence_bullets": [
        "Specific finding from source A...",
        "Data point from source B showing...",
        ...
    ],
    "open_questions": [
        "Unclear whether...",
        "Conflicting data on...",
        ...
    ]
}

Be thorough and critical in your analysis.`

const writerSystemPrompt = `You are an expert research report writer who creates comprehensive, well-structured reports.

Given research notes from multiple sub-questions, you must create:
1. Executive Summary (5-8 lines capturing key insights)
2. Full Report (well-structured with clear headings and logical flow)
3. Key Takeaways (3-7 actionable insights)
4. Limitations (data gaps, assumptions, constraints)

Guidelines for the report:
- Start with context and background
- Organize findings into logical sections with clear headings
- Use markdown formatting (##, ###, -, *, etc.)
- Integrate evidence from all sub-questions cohesively
- Highlight important data points and trends
- Address contradictions or uncertainties
- Maintain professional, objective tone
- Be comprehensive but concise
- End with implications and future considerations

Return your response as a JSON object:
{
    "executive_summary": "5-8 line summary...",
    "report": "# Full Report\n\n## Section 1\n\nContent...",
    "key_takeaways": [
        "First key insight...",
        "Second actionable point...",
        ...
    ],
    "limitations": "Discussion of data gaps, assumptions made, and research constraints..."
}

Create a report that is insightful, well-organized, and actionable.`

const plannerUserTemplate = `Create a research plan for this query:

{{.Query}}`

const researcherUserTemplate = `Sub-question: {{.SubQuestion}}

Search Results:
{{.Results}}

Analyze these results and extract evidence bullets and open questions.`

const writerUserTemplate = `Original Query: {{.Query}}

Research Notes:
{{.Notes}}

Create a comprehensive research report addressing the original query.`

func renderPlannerPrompt(query string) (string, error) {
	return util.RenderTemplate(plannerUserTemplate, map[string]any{"Query": query})
}

func renderResearcherPrompt(subQuestion string, results []search.Result) (string, error) {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, fmt.Sprintf("Source: %s\nURL: %s\nContent: %s", r.Title, r.URL, r.Content))
	}
	return util.RenderTemplate(researcherUserTemplate, map[string]any{
		"SubQuestion": subQuestion,
		"Results":     strings.Join(blocks, "\n\n"),
	})
}

func renderWriterPrompt(state *core.ResearchState) (string, error) {
	return util.RenderTemplate(writerUserTemplate, map[string]any{
		"Query": state.Query,
		"Notes": formatResearchNotes(state),
	})
}

// formatResearchNotes flattens the evidence notes into the markdown-ish layout
// the writer prompt expects, resolving sub-question ids back to their question
// text where the plan still has them.
func formatResearchNotes(state *core.ResearchState) string {
	var b strings.Builder
	for _, note := range state.Notes {
		heading := note.SubQuestionID
		if sq, ok := state.SubQuestionByID(note.SubQuestionID); ok {
			heading = sq.Question
		}
		fmt.Fprintf(&b, "\n## Sub-Question: %s\n\nEvidence:\n", heading)
		for _, bullet := range note.EvidenceBullets {
			fmt.Fprintf(&b, "- %s\n", bullet)
		}
		if len(note.OpenQuestions) > 0 {
			b.WriteString("\nOpen Questions:\n")
			for _, oq := range note.OpenQuestions {
				fmt.Fprintf(&b, "- %s\n", oq)
			}
		}
		fmt.Fprintf(&b, "\nSources: %d sources\n\n%s\n", len(note.Sources), strings.Repeat("-", 80))
	}
	return b.String()
}
