package pipeline

import (
	"fmt"
	"strings"

	"github.com/fpang/gemini-image-orchestrator/internal/domain"
	"github.com/fpang/gemini-image-orchestrator/internal/multiimage"
)

// ResolveRatio replaces a ratio given only by label ("16:9") with the
// supported ratio, filling its pixel dimensions.
func ResolveRatio(r *domain.AspectRatio) (*domain.AspectRatio, error) {
	if r == nil || r.IsZero() {
		return nil, nil
	}
	known, err := domain.ParseAspectRatio(r.Ratio)
	if err != nil {
		return nil, err
	}
	return &known, nil
}

// ResolveParameters validates decoded parameters in place.
func ResolveParameters(p *domain.ImageParameters) error {
	r, err := ResolveRatio(p.AspectRatio)
	if err != nil {
		return err
	}
	p.AspectRatio = r
	if _, err := domain.ParseQuality(string(p.Quality)); err != nil {
		return err
	}
	if _, err := domain.ParseStyle(string(p.Style)); err != nil {
		return err
	}
	return nil
}

// PrepareBatch fills ProcessingOptions from configuration when the request
// omits them and resolves every ratio and parameter set it carries.
func (p *Pipeline) PrepareBatch(req *multiimage.Request) error {
	if req.ProcessingOptions == nil {
		req.ProcessingOptions = p.ProcessingOptions()
	}

	var problems []string
	if err := ResolveParameters(&req.ProcessingOptions.ImageParameters); err != nil {
		problems = append(problems, "processingOptions.imageParameters: "+err.Error())
	}
	for i := range req.ImageRequirements {
		r := &req.ImageRequirements[i]
		ratio, err := ResolveRatio(r.AspectRatio)
		if err != nil {
			problems = append(problems, fmt.Sprintf("imageRequirements[%d].aspectRatio: %v", i, err))
		} else {
			r.AspectRatio = ratio
		}
		if r.ImageParameters != nil {
			if err := ResolveParameters(r.ImageParameters); err != nil {
				problems = append(problems, fmt.Sprintf("imageRequirements[%d].imageParameters: %v", i, err))
			}
		}
	}
	if len(problems) > 0 {
		return domain.Validation("pipeline.PrepareBatch", "Invalid request: %s", strings.Join(problems, "; "))
	}
	return nil
}
