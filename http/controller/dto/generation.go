package dto

// CreateGenerationRequestDTO carries the multipart form fields of a render
// submission. The room photo itself arrives as the "image" file part.
type CreateGenerationRequestDTO struct {
	Prompt   string `form:"prompt"`
	Style    string `form:"style"`
	RoomType string `form:"room_type"`
	Color    string `form:"color"`
	Material string `form:"material"`
}

// GenerationResponseDTO is one job in API responses.
type GenerationResponseDTO struct {
	JobID          string `json:"job_id"`
	Phase          string `json:"phase"`
	Status         string `json:"status"`
	Prompt         string `json:"prompt"`
	InputImageURL  string `json:"input_image_url"`
	OutputImageURL string `json:"output_image_url"`
	CreatedAt      string `json:"created_at"`
}
