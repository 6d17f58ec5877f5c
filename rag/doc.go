// Package rag holds the shared data model of paperrag: chunks, paper
// sections, paper metadata, search results and the error kinds every
// component reports.
//
// The sub-packages form the retrieval-augmented generation core for
// research papers:
//
//   - loader: reads .pdf, .docx and .txt files and segments the text into
//     named sections (abstract, introduction, methodology, ...)
//   - splitter: splits sections into overlapping chunks that carry their
//     section and source as metadata
//   - embedding: turns text into L2-normalised vectors through OpenAI,
//     Ollama, langchaingo or a deterministic hash embedder
//   - store: the VectorStore, a persistent similarity index over chunks
//     with metadata filters
//   - extract: asks an LLM for a paper's bibliographic metadata, validates
//     the reply against a JSON schema and records it
//   - ingest: runs load, extract, split and index for files and directories
//   - retriever: similarity, MMR and diversity retrieval with optional
//     reranking, usable as a langchaingo schema.Retriever
//   - engine: the Orchestrator that retrieves context and prompts the LLM,
//     and the HybridSearcher that merges document and web context
//
// # Quick Start
//
//	embedder := embedding.NewProvider(embedding.NewOpenAIBackend(key, "", ""))
//	vectors := store.New(embedder)
//
//	pipeline, _ := ingest.New(nil, nil,
//		ingest.WithExtractor(extract.New(llm, metadataStore)),
//		ingest.WithIndexer(vectors),
//	)
//	batch, err := pipeline.IngestDir(ctx, "./papers")
//
//	o := engine.NewOrchestrator(retriever.NewVectorRetriever(vectors, retriever.RetrievalConfig{K: 4}), llm)
//	res, err := o.Query(ctx, "Which papers use sparse attention?",
//		engine.WithFilter(map[string]any{rag.MetaYear: 2023}))
//	fmt.Println(res.Answer, res.Sources)
//
// # Metadata
//
// Chunk metadata uses the Meta* keys. Every chunk has section, source and
// chunk_index; once a paper's metadata is extracted its chunks also carry
// paper_id, title, authors, year, venue and keywords, which filters can
// match on. Numeric values compare equal across int, int64 and float64 so
// filters keep working after an index is reloaded from JSON.
//
// # Errors
//
// Components wrap the sentinel errors in errors.go with %w. Match them with
// errors.Is:
//
//	if errors.Is(err, rag.ErrNotInitialized) {
//		// nothing has been indexed yet
//	}
package rag
