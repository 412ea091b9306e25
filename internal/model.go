package internal

import (
	"context"
	"image"
)

// DefaultInputSize is the square edge, in pixels, the image encoder expects.
const DefaultInputSize = 256

// ImageEmbedder maps images into the joint embedding space.
type ImageEmbedder interface {
	// EmbedImages returns one embedding per image, in input order.
	EmbedImages(ctx context.Context, images []*image.RGBA) ([]Embedding, error)
	InputSize() int
}

// TextEmbedder maps a token sequence into the joint embedding space.
type TextEmbedder interface {
	EmbedTokens(ctx context.Context, tokens TokenSequence) (Embedding, error)
}
