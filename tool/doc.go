// Package tool provides the web search providers used for hybrid answers.
//
// TavilySearch and BraveSearch both implement rag.WebSearcher, returning
// structured results, and langchaingo's tools.Tool, returning the results
// formatted as text so they can be handed to a langchaingo agent:
//
//	tavily, err := tool.NewTavilySearch("", tool.WithTavilyMaxResults(5))
//	if err != nil {
//		return err
//	}
//	resp, err := tavily.Search(ctx, "sparse attention benchmarks")
//
// Both read their API key from the environment (TAVILY_API_KEY,
// BRAVE_API_KEY) when none is given.
//
// WebFetch downloads a page and returns its visible text, and EnrichResults
// uses it to fill in results that came back without content.
package tool
