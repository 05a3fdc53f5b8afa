package request

// SaveAPIKey stores the key of an AI provider as a connection.
type SaveAPIKey struct {
	Platform string `json:"platform" validate:"required,oneof=openai gemini claude ollama"`
	Name     string `json:"name"`
	APIKey   string `json:"apiKey" validate:"required_unless=Platform ollama"`
	Endpoint string `json:"endpoint" validate:"omitempty,url"`
	Model    string `json:"model"`
}
