// internal/workers/validation/run-validation/models.go
package runvalidation

type Input struct {
	RunID          string          `json:"runId"`
	UnitIdentifier string          `json:"unitIdentifier"`
	OrgIdentifier  string          `json:"orgIdentifier"`
	Documents      []DocumentInput `json:"documents"`
	Categories     []string        `json:"categories,omitempty"`
}

type DocumentInput struct {
	FileName        string `json:"fileName"`
	DocumentType    string `json:"documentType"`
	MimeType        string `json:"mimeType"`
	ProviderFileURI string `json:"providerFileUri"`
	UploadedAt      string `json:"uploadedAt"` // ISO 8601
}

type Output struct {
	RunID       string  `json:"runId"`
	Status      string  `json:"status"`
	Total       int     `json:"total"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"successRate"`
}
