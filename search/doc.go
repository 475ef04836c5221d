// Package search defines the web search capability consumed by the Research
// stage. Implementations return ranked results for a query; failures are
// classified behind SearchError so the stage can absorb per-query failures
// without aborting the run. The tavily subpackage provides the production
// backend; MockSearcher supports isolated testing.
package search
