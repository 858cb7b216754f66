package models

const (
	ThinkTag = `(?s)<think>.*?</think>`

	// MetaSource and friends are the metadata keys stored with every indexed chunk.
	MetaSource         = "source"
	MetaPage           = "page"
	MetaTitle          = "title"
	MetaAuthors        = "authors"
	MetaEmbeddingModel = "embedding_model"

	DefaultSearchLimit      = 20
	DefaultCertaintyFloor   = 0.9
	DefaultHistoryThreshold = 10
)

var (
	AnswerSystemPrompt = "You are a Helpful Research Assisting Agent, tasked with generating a response to the query using only the data and context provided to you and create MLA Citations for your answers. I will provide you with the context and finally the query you need to answer."

	ContinuousSystemPrompt = "You are a Helpful Research Assisting Agent, tasked with generating a response to the query using only the data and context provided to you, as well as our previous Chat History, and create MLA Citations for your answers. I will provide you with the context, certain amount of chat history and finally the query you need to answer."

	TitlePrompt = "Write an appropriate title for the following Query: "
)
