package ai

// GeneratedDraft captures the structured listing copy expected from the generator.
// Source records which generator produced the draft and is not part of the
// wire contract.
type GeneratedDraft struct {
	Title        string   `json:"title"`
	Bullets      []string `json:"bullets"`
	Description  string   `json:"description"`
	BackendTerms string   `json:"backend_terms,omitempty"`
	Source       string   `json:"-"`
}
