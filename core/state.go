package core

import (
	"net/url"
	"strings"
)

// Plan size bounds enforced by the Plan stage. A plan outside these bounds is
// a contract violation: too small is rejected, too large is clamped.
const (
	MinSubQuestions = 3
	MaxSubQuestions = 6
)

// SubQuestion is one focused slice of the original query produced by the Plan
// stage. Priority 1 is highest; SearchQueries are pre-derived web queries.
type SubQuestion struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	SearchQueries []string `json:"search_queries"`
	Priority      int      `json:"priority"`
}

// Citation references a single source. URL is the raw URL as returned by the
// searcher; dedup happens against its normalized form.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Note is one sub-question's worth of research evidence. Notes are append-only:
// the Research stage adds them, later stages only read.
type Note struct {
	SubQuestionID   string     `json:"sub_question_id"`
	EvidenceBullets []string   `json:"evidence_bullets"`
	Sources         []Citation `json:"sources"`
	OpenQuestions   []string   `json:"open_questions,omitempty"`
}

// StageError records a localized failure tagged with the stage that absorbed
// it and, where applicable, the sub-question it affected. The Errors sequence
// on ResearchState is append-only and never cleared; downstream stages consult
// it to decide between degraded continuation and short-circuit.
type StageError struct {
	Stage         string `json:"stage"`
	SubQuestionID string `json:"sub_question_id,omitempty"`
	Detail        string `json:"detail"`
}

// ResearchState is the single mutable record threaded through the Plan,
// Research and Write stages of one Turn. Exactly one stage is active at a
// time, so the struct carries no lock; concurrent research workers hand their
// results to a single aggregator which is the only writer.
//
// Field ownership:
//   - Query: set once at construction, never mutated.
//   - Plan: written once by Plan, read-only thereafter.
//   - Notes, Citations, SourcesAnalyzed: appended by Research only.
//   - Report, ExecutiveSummary, KeyTakeaways, Limitations: written once by Write.
//   - Errors: append-only from any stage.
type ResearchState struct {
	Query string `json:"query"`

	Plan []SubQuestion `json:"plan,omitempty"`

	Notes           []Note     `json:"notes,omitempty"`
	Citations       []Citation `json:"citations,omitempty"`
	SourcesAnalyzed int        `json:"sources_analyzed"`

	Report           string   `json:"report,omitempty"`
	ExecutiveSummary string   `json:"executive_summary,omitempty"`
	KeyTakeaways     []string `json:"key_takeaways,omitempty"`
	Limitations      string   `json:"limitations,omitempty"`

	Errors []StageError `json:"errors,omitempty"`

	// seenURLs indexes Citations by normalized URL for incremental dedup.
	seenURLs map[string]struct{}
}

// NewResearchState creates a fresh state for the given query.
func NewResearchState(query string) *ResearchState {
	return &ResearchState{
		Query:    query,
		seenURLs: make(map[string]struct{}),
	}
}

// Clone returns a deep copy of the state. Snapshots handed to readers must
// not alias the slices the owning turn may still append to.
func (s *ResearchState) Clone() *ResearchState {
	if s == nil {
		return nil
	}
	out := &ResearchState{
		Query:            s.Query,
		SourcesAnalyzed:  s.SourcesAnalyzed,
		Report:           s.Report,
		ExecutiveSummary: s.ExecutiveSummary,
		Limitations:      s.Limitations,
	}
	if s.Plan != nil {
		out.Plan = make([]SubQuestion, len(s.Plan))
		for i, sq := range s.Plan {
			sq.SearchQueries = append([]string(nil), sq.SearchQueries...)
			out.Plan[i] = sq
		}
	}
	if s.Notes != nil {
		out.Notes = make([]Note, len(s.Notes))
		for i, n := range s.Notes {
			n.EvidenceBullets = append([]string(nil), n.EvidenceBullets...)
			n.Sources = append([]Citation(nil), n.Sources...)
			n.OpenQuestions = append([]string(nil), n.OpenQuestions...)
			out.Notes[i] = n
		}
	}
	out.Citations = append([]Citation(nil), s.Citations...)
	out.KeyTakeaways = append([]string(nil), s.KeyTakeaways...)
	out.Errors = append([]StageError(nil), s.Errors...)
	if s.seenURLs != nil {
		out.seenURLs = make(map[string]struct{}, len(s.seenURLs))
		for k := range s.seenURLs {
			out.seenURLs[k] = struct{}{}
		}
	}
	return out
}

// AppendNote records a completed sub-question's evidence. Insertion order is
// preserved; notes are never overwritten.
func (s *ResearchState) AppendNote(n Note) {
	s.Notes = append(s.Notes, n)
}

// AddCitation adds c to the citation set unless a citation with the same
// normalized URL is already present. It reports whether the citation was new.
func (s *ResearchState) AddCitation(c Citation) bool {
	key := NormalizeURL(c.URL)
	if key == "" {
		return false
	}
	if s.seenURLs == nil {
		s.seenURLs = make(map[string]struct{})
	}
	if _, dup := s.seenURLs[key]; dup {
		return false
	}
	s.seenURLs[key] = struct{}{}
	s.Citations = append(s.Citations, c)
	return true
}

// RecordError appends a stage-tagged error record. Errors are never cleared.
func (s *ResearchState) RecordError(stage, subQuestionID, detail string) {
	s.Errors = append(s.Errors, StageError{Stage: stage, SubQuestionID: subQuestionID, Detail: detail})
}

// HasNotes reports whether any research evidence was collected.
func (s *ResearchState) HasNotes() bool { return len(s.Notes) > 0 }

// FailedSubQuestions returns the ids of sub-questions that recorded an error,
// in recording order, without duplicates.
func (s *ResearchState) FailedSubQuestions() []string {
	seen := make(map[string]struct{}, len(s.Errors))
	var ids []string
	for _, e := range s.Errors {
		if e.SubQuestionID == "" {
			continue
		}
		if _, ok := seen[e.SubQuestionID]; ok {
			continue
		}
		seen[e.SubQuestionID] = struct{}{}
		ids = append(ids, e.SubQuestionID)
	}
	return ids
}

// SubQuestionByID returns the plan entry with the given id, if present.
func (s *ResearchState) SubQuestionByID(id string) (SubQuestion, bool) {
	for _, sq := range s.Plan {
		if sq.ID == id {
			return sq, true
		}
	}
	return SubQuestion{}, false
}

// NormalizeURL canonicalizes a URL for citation dedup: lowercases the scheme
// and host, strips query strings, fragments, default ports and trailing
// slashes. Two URLs that differ only in case, tracking parameters or a
// trailing slash normalize to the same key. Returns "" for unparseable input.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	path := strings.TrimSuffix(u.Path, "/")
	return scheme + "://" + host + path
}
