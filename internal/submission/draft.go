package submission

import (
	"fmt"

	"github.com/commentgig/backend/internal/models"
)

// DraftProof is what a client holds while the screenshot is still local. It
// becomes a Proof only once the upload has produced a durable reference.
type DraftProof struct {
	LocalScreenshot string
	ReviewLink      string
	Metadata        []byte
}

// Finalize swaps the local screenshot for its uploaded reference.
func (d DraftProof) Finalize(screenshotRef string) (models.Proof, error) {
	if d.LocalScreenshot != "" && screenshotRef == "" {
		return models.Proof{}, fmt.Errorf("%w: screenshot has not been uploaded", models.ErrIncompleteProof)
	}
	return models.Proof{ScreenshotRef: screenshotRef, ReviewLink: d.ReviewLink, Metadata: d.Metadata}, nil
}
