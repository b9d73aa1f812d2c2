package supabase

// Edge function names.
const (
	FunctionIngestContract  = "ingest-contract"
	FunctionExtractClauses  = "extract-clauses"
	FunctionAnalyzeContract = "analyze-contract"
)

// IngestionsTable is the REST table holding uploaded contracts.
const IngestionsTable = "contract_ingestions"

// Ingestion statuses.
const (
	StatusUploaded  = "uploaded"
	StatusIngested  = "ingested"
	StatusExtracted = "extracted"
	StatusAnalyzed  = "analyzed"
	StatusFailed    = "failed"
)

// IngestionRecord is a row in contract_ingestions.
type IngestionRecord struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	StorageBucket string `json:"storage_bucket"`
	StoragePath   string `json:"storage_path"`
	OriginalName  string `json:"original_name"`
	MIMEType      string `json:"mime_type"`
	FileSize      int64  `json:"file_size"`
	CreatedAt     string `json:"created_at,omitempty"`
}

// IngestRequest is the ingest-contract payload.
type IngestRequest struct {
	IngestionID    string `json:"ingestionId"`
	Content        string `json:"content"`
	FileType       string `json:"fileType"`
	FileName       string `json:"fileName"`
	DocumentFormat string `json:"documentFormat"`
	ContractType   string `json:"contractType"`
}

// IngestResponse is the subset of the ingest-contract reply we use.
type IngestResponse struct {
	Success       bool   `json:"success"`
	IngestionID   string `json:"ingestionId,omitempty"`
	ClausesCached bool   `json:"clausesCached"`
	Message       string `json:"message,omitempty"`
}

// ExtractRequest is the extract-clauses payload.
type ExtractRequest struct {
	IngestionID  string `json:"ingestionId"`
	ContractType string `json:"contractType"`
	ForceRefresh bool   `json:"forceRefresh"`
}

// SelectedSolution identifies the product offering the review is for.
type SelectedSolution struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Title string `json:"title"`
}

// AnalyzeRequest is the analyze-contract payload.
type AnalyzeRequest struct {
	IngestionID      string            `json:"ingestionId"`
	ReviewType       string            `json:"reviewType"`
	Model            string            `json:"model,omitempty"`
	ContractType     string            `json:"contractType"`
	Perspective      string            `json:"perspective,omitempty"`
	SelectedSolution *SelectedSolution `json:"selectedSolution,omitempty"`
	ForceRefresh     bool              `json:"forceRefresh,omitempty"`
}
