package dialog

import (
	"context"
	"errors"
	"time"

	"portraitd/internal/entity"
	"portraitd/internal/imagegen"
	"portraitd/pkg/types"
)

// Confirmation shown before the saved portrait replaces the entity image.
const (
	ConfirmTitle   = "Set as Actor Image?"
	ConfirmMessage = "Would you like to set this as the actor's portrait image?"
)

const (
	purposePortrait = "portrait"
	purposeToken    = "token"
)

var errNoImageData = errors.New("image has no data to process")

// Generate runs the whole pipeline once: validate, request, pick, optional
// background removal, save portrait, save token variant, confirm and apply.
// Only one run per dialog may be in flight. Every remote call is attempted
// exactly once. On success the dialog closes.
func (d *Dialog) Generate(ctx context.Context, f types.FormFields, ui UI) (types.Outcome, error) {
	var out types.Outcome
	if !d.generating.CompareAndSwap(false, true) {
		notify(ui, LevelWarn, "Generation already in progress")
		generationsTotal.WithLabelValues(resultBusy).Inc()
		return out, ErrAlreadyGenerating
	}
	defer d.generating.Store(false)
	if d.Closed() {
		return out, ErrDialogClosed
	}

	if err := imagegen.Validate(f); err != nil {
		notify(ui, LevelError, err.Error())
		generationsTotal.WithLabelValues(resultInvalid).Inc()
		return out, err
	}

	selected, err := d.requestImage(ctx, f, ui)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			out.Cancelled = true
			generationsTotal.WithLabelValues(resultCancelled).Inc()
		} else {
			generationsTotal.WithLabelValues(resultFailed).Inc()
		}
		return out, err
	}

	working := selected
	if f.RemoveBackground {
		if nobg, err := d.removeBackground(ctx, selected, purposePortrait); err != nil {
			d.log.Warn().Err(err).Str("dialog", d.id).Msg("background removal failed; using original image")
			notify(ui, LevelWarn, "Background removal failed - "+err.Error())
		} else {
			working = nobg
			out.BackgroundRemoved = true
		}
	}

	notify(ui, LevelInfo, "Saving generated image...")
	portraitPath, err := d.saver.SavePortrait(ctx, d.entity.Name, payload(working))
	if err != nil {
		d.log.Error().Err(err).Str("entity", d.entity.ID).Msg("save portrait failed")
		notify(ui, LevelError, "Failed to save image - "+err.Error())
		generationsTotal.WithLabelValues(resultFailed).Inc()
		return out, err
	}
	out.PortraitPath = portraitPath
	notify(ui, LevelInfo, "Image saved successfully at "+portraitPath)

	// The portrait stays saved even if the token variant fails.
	token := working
	if !out.BackgroundRemoved {
		if nobg, err := d.removeBackground(ctx, selected, purposeToken); err != nil {
			d.log.Warn().Err(err).Str("dialog", d.id).Msg("token background removal failed; using original image")
		} else {
			token = nobg
		}
	}
	tokenPath, err := d.saver.SaveToken(ctx, d.entity.Name, payload(token))
	if err != nil {
		d.log.Error().Err(err).Str("entity", d.entity.ID).Msg("save token image failed")
		notify(ui, LevelError, "Failed to save token image - "+err.Error())
	} else {
		out.TokenPath = tokenPath
	}

	apply, err := ui.Confirm(ctx, ConfirmTitle, ConfirmMessage, portraitPath, true)
	if err != nil {
		d.log.Warn().Err(err).Str("dialog", d.id).Msg("portrait confirmation aborted")
		apply = false
	}
	if apply {
		if err := d.entities.Update(ctx, d.entity.ID, map[string]any{entity.FieldImg: portraitPath}); err != nil {
			notify(ui, LevelError, "Failed to save image - "+err.Error())
			generationsTotal.WithLabelValues(resultFailed).Inc()
			return out, err
		}
		out.PortraitApplied = true
		notify(ui, LevelInfo, "Actor image updated")
	}
	if out.TokenPath != "" {
		if err := d.entities.Update(ctx, d.entity.ID, map[string]any{entity.FieldTokenImg: out.TokenPath}); err != nil {
			notify(ui, LevelError, "Failed to update token image - "+err.Error())
			generationsTotal.WithLabelValues(resultFailed).Inc()
			return out, err
		}
		out.TokenApplied = true
	}

	generationsTotal.WithLabelValues(resultSuccess).Inc()
	d.log.Info().
		Str("dialog", d.id).
		Str("entity", d.entity.ID).
		Str("portrait", out.PortraitPath).
		Str("token", out.TokenPath).
		Bool("applied", out.PortraitApplied).
		Msg("generation finished")
	d.Close()
	return out, nil
}

// requestImage performs the remote call and resolves the selected image.
func (d *Dialog) requestImage(ctx context.Context, f types.FormFields, ui UI) (types.ImageResult, error) {
	req := imagegen.Build(f)
	notify(ui, LevelInfo, "Generating image...")
	d.log.Debug().
		Str("dialog", d.id).
		Str("model", req.Model).
		Str("prompt", req.PositivePrompt).
		Int("results", req.NumberResults).
		Msg("requesting images")

	start := time.Now()
	images, err := d.images.RequestImages(ctx, req)
	generationDuration.Observe(time.Since(start).Seconds())
	if err == nil && len(images) == 0 {
		err = ErrNoImages
	}
	if err != nil {
		d.log.Error().Err(err).Str("dialog", d.id).Msg("image generation failed")
		notify(ui, LevelError, "Image generation failed - "+err.Error())
		if errors.Is(err, ErrNoImages) {
			return types.ImageResult{}, err
		}
		return types.ImageResult{}, &GenerationError{Err: err}
	}
	if len(images) == 1 {
		return images[0], nil
	}
	idx, ok, err := ui.Choose(ctx, images)
	if err != nil {
		return types.ImageResult{}, err
	}
	if !ok || idx < 0 || idx >= len(images) {
		notify(ui, LevelInfo, "Image selection cancelled")
		return types.ImageResult{}, ErrCancelled
	}
	return images[idx], nil
}

// removeBackground asks the remote service to strip the background of img.
// The result is usable only if it carries image data.
func (d *Dialog) removeBackground(ctx context.Context, img types.ImageResult, purpose string) (types.ImageResult, error) {
	in := backgroundInput(img)
	if in == "" {
		backgroundRemovalsTotal.WithLabelValues(purpose, resultFailed).Inc()
		return types.ImageResult{}, errNoImageData
	}
	res, err := d.images.RemoveBackground(ctx, types.BackgroundRemovalRequest{
		InputImage:   in,
		OutputType:   types.OutputTypeBase64,
		OutputFormat: types.OutputFormatPNG,
	})
	if err == nil && payload(res) == "" {
		err = errNoImageData
	}
	if err != nil {
		backgroundRemovalsTotal.WithLabelValues(purpose, resultFailed).Inc()
		return types.ImageResult{}, err
	}
	backgroundRemovalsTotal.WithLabelValues(purpose, resultSuccess).Inc()
	return res, nil
}

// backgroundInput prefers the remote image reference, then a data URI, then
// raw base64 promoted to a PNG data URI.
func backgroundInput(img types.ImageResult) string {
	switch {
	case img.ImageUUID != "":
		return img.ImageUUID
	case img.ImageDataURI != "":
		return img.ImageDataURI
	case img.ImageBase64Data != "":
		return "data:image/png;base64," + img.ImageBase64Data
	}
	return ""
}

func payload(img types.ImageResult) string {
	if img.ImageBase64Data != "" {
		return img.ImageBase64Data
	}
	return img.ImageDataURI
}
