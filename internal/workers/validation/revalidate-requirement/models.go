// internal/workers/validation/revalidate-requirement/models.go
package revalidaterequirement

type Input struct {
	RunID         string          `json:"runId"`
	RequirementID int64           `json:"requirementId"`
	Documents     []DocumentInput `json:"documents"`
}

type DocumentInput struct {
	FileName        string `json:"fileName"`
	DocumentType    string `json:"documentType"`
	MimeType        string `json:"mimeType"`
	ProviderFileURI string `json:"providerFileUri"`
	UploadedAt      string `json:"uploadedAt"` // ISO 8601
}

type Output struct {
	RunID         string  `json:"runId"`
	RequirementID int64   `json:"requirementId"`
	Status        string  `json:"status"`
	Confidence    float64 `json:"confidence"`
}
