// paperrag - question answering over a library of research papers
//
// paperrag ingests research papers (PDF, DOCX, plain text), splits them into
// section-aware chunks, extracts bibliographic metadata with an LLM, and
// answers questions by retrieving the most relevant chunks and prompting a
// language model with them. Answers can draw on the indexed papers, on a web
// search provider, or on both.
//
// # Quick Start
//
// Install the command:
//
//	go install github.com/smallnest/paperrag/cmd/paperrag@latest
//
// Configure it through the environment or a .env file:
//
//	GROQ_API_KEY=...            # OpenAI-compatible chat endpoint
//	EMBEDDING_PROVIDER=openai   # openai, ollama, langchain or hash
//	EMBEDDING_API_KEY=...
//	TAVILY_API_KEY=...          # optional, enables web and hybrid answers
//	METADATA_BACKEND=sqlite     # file, memory, sqlite, postgres or redis
//
// Then index and ask:
//
//	paperrag ingest --dir ./papers
//	paperrag query "How do the papers reduce attention cost?"
//	paperrag query --mode hybrid --year 2023 "What is new in diffusion models?"
//	paperrag papers --keyword diffusion --from 2021
//	paperrag trends --recent 2
//	paperrag report --format html -o report.html -q "Summarise the main results"
//
// # Packages
//
//   - rag: data model and error kinds; sub-packages hold the pipeline
//     (loader, splitter, embedding, store, extract, ingest, retriever, engine)
//   - store: MetadataStore and its file, memory, sqlite, postgres and redis
//     backends
//   - library: paper listing, keyword trends, emerging topics and reports
//   - tool: Tavily and Brave web search, page fetching
//   - config: environment configuration
//   - log: leveled logging on the standard library or golog
//
// # Library Use
//
// Every component is an ordinary value built with functional options, so the
// pipeline can be embedded without the command line:
//
//	a, err := app.New(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer a.Close()
//
//	res, err := a.Orchestrator.Answer(ctx, question, engine.ModeHybrid)
//
// internal/app shows the complete wiring.
package paperrag // import "github.com/smallnest/paperrag"
