package chat

// Gemini Model IDs
//
// | Model Name              | API Model ID               | Use Case                        |
// |-------------------------|----------------------------|---------------------------------|
// | Gemini 2.5 Flash Image  | gemini-2.5-flash-image     | Fast image generation and edits |
// | Gemini 3 Pro Image      | gemini-3-pro-image-preview | Advanced image generation/edit  |
// | Gemini 2.5 Flash        | gemini-2.5-flash           | Stable, balanced text model     |
// | Gemini 2.5 Flash-Lite   | gemini-2.5-flash-lite      | High-throughput, lowest cost    |
const (
	// ModelGemini25FlashImage is the default image generation model.
	ModelGemini25FlashImage = "gemini-2.5-flash-image"

	// ModelGemini3ProImage supports 2K and 4K output.
	ModelGemini3ProImage = "gemini-3-pro-image-preview"

	// ModelGemini25Flash is stable, balanced performance.
	ModelGemini25Flash = "gemini-2.5-flash"

	// ModelGemini25FlashLite is for high-throughput, lowest cost.
	ModelGemini25FlashLite = "gemini-2.5-flash-lite"
)

const (
	// DefaultImageModel renders images.
	DefaultImageModel = ModelGemini25FlashImage

	// DefaultTextModel drives the template and enhancement engines.
	DefaultTextModel = ModelGemini25Flash
)

// supportsImageSize reports whether the model accepts ImageConfig.ImageSize.
func supportsImageSize(model string) bool {
	return model == ModelGemini3ProImage
}
