package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"portraitd/internal/dialog"
	"portraitd/pkg/types"
)

var genFields types.FormFields

var generateCmd = &cobra.Command{
	Use:   "generate <entity-id>",
	Short: "Generate a portrait for an entity from the terminal",
	Long: `Run the generation pipeline once for an entity.

Examples:
  portraitd generate Actor.x1Y2 --user gm --prompt "an elven ranger" --model runware:101@1
  portraitd generate Actor.x1Y2 --user gm --prompt "a dwarf" --preset <preset-id> --remove-background`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	f := generateCmd.Flags()
	f.StringVar(&genFields.Prompt, "prompt", "", "Prompt text")
	f.StringVar(&genFields.NegativePrompt, "negative-prompt", "", "Negative prompt")
	f.StringVar(&genFields.Model, "model", "", "Model id (defaults to the defaultModel setting)")
	f.StringVar(&genFields.Width, "width", "", "Image width")
	f.StringVar(&genFields.Height, "height", "", "Image height")
	f.StringVar(&genFields.NumberResults, "results", "", "Number of images to generate")
	f.StringVar(&genFields.LoraModel, "lora", "", "LoRA model id")
	f.StringVar(&genFields.LoraWeight, "lora-weight", "", "LoRA weight")
	f.StringVar(&genFields.LoraTrigger, "lora-trigger", "", "LoRA trigger word")
	f.StringVar(&genFields.VAEModel, "vae", "", "VAE model id")
	f.StringVar(&genFields.Embeddings, "embeddings", "", "Embeddings, model[:weight] comma separated")
	f.StringVar(&genFields.Steps, "steps", "", "Sampling steps")
	f.StringVar(&genFields.CFGScale, "cfg-scale", "", "CFG scale")
	f.StringVar(&genFields.Seed, "seed", "", "Seed")
	f.StringVar(&genFields.PresetID, "preset", "", "Preset id applied before the flags above")
	f.BoolVar(&genFields.RemoveBackground, "remove-background", false, "Remove the background of the portrait")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	d, err := a.dialogs.Open(ctx, args[0], flagUser)
	if err != nil {
		return err
	}
	defer d.Close()
	view, err := d.Prepare(ctx)
	if err != nil {
		return err
	}

	ui := newTerminalUI(os.Stdin, os.Stderr)
	fields := genFields
	if fields.PresetID != "" {
		// Explicit flags win over preset values.
		applied, err := d.ApplyPreset(fields.PresetID, types.FormFields{}, ui)
		if err != nil {
			return err
		}
		fields = overlay(applied, genFields)
	}
	if fields.Model == "" {
		fields.Model = view.DefaultModel
	}
	if fields.Width == "" {
		fields.Width = strconv.Itoa(view.ImageWidth)
	}
	if fields.Height == "" {
		fields.Height = strconv.Itoa(view.ImageHeight)
	}
	if fields.NumberResults == "" {
		fields.NumberResults = strconv.Itoa(view.NumberResults)
	}

	out, err := d.Generate(ctx, fields, ui)
	if err != nil {
		if dialog.IsCancelled(err) {
			return nil
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "portrait: %s\n", out.PortraitPath)
	if out.TokenPath != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "token:    %s\n", out.TokenPath)
	}
	return nil
}

// overlay copies the non-empty string fields of top over base.
func overlay(base, top types.FormFields) types.FormFields {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&base.Prompt, top.Prompt)
	set(&base.NegativePrompt, top.NegativePrompt)
	set(&base.Model, top.Model)
	set(&base.Width, top.Width)
	set(&base.Height, top.Height)
	set(&base.NumberResults, top.NumberResults)
	set(&base.LoraModel, top.LoraModel)
	set(&base.LoraWeight, top.LoraWeight)
	set(&base.LoraTrigger, top.LoraTrigger)
	set(&base.VAEModel, top.VAEModel)
	set(&base.Embeddings, top.Embeddings)
	set(&base.Steps, top.Steps)
	set(&base.CFGScale, top.CFGScale)
	set(&base.Seed, top.Seed)
	base.RemoveBackground = base.RemoveBackground || top.RemoveBackground
	return base
}

// terminalUI asks pipeline questions on a terminal. Without a terminal the
// first image is taken and confirmations use their default.
type terminalUI struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
}

func newTerminalUI(in *os.File, out io.Writer) *terminalUI {
	return &terminalUI{in: bufio.NewReader(in), out: out, interactive: term.IsTerminal(int(in.Fd()))}
}

func (u *terminalUI) Notify(level dialog.Level, msg string) {
	fmt.Fprintf(u.out, "[%s] %s\n", level, msg)
}

func (u *terminalUI) Choose(ctx context.Context, candidates []types.ImageResult) (int, bool, error) {
	if !u.interactive {
		return 0, true, nil
	}
	for i, c := range candidates {
		ref := c.ImageURL
		if ref == "" {
			ref = c.ImageUUID
		}
		fmt.Fprintf(u.out, "  %d) %s seed=%d\n", i+1, ref, c.Seed)
	}
	line, err := u.ask(ctx, fmt.Sprintf("Select an image [1-%d, empty cancels]: ", len(candidates)))
	if err != nil || line == "" {
		return -1, false, err
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(candidates) {
		return -1, false, nil
	}
	return n - 1, true, nil
}

func (u *terminalUI) Confirm(ctx context.Context, title, message, image string, defaultYes bool) (bool, error) {
	if !u.interactive {
		return defaultYes, nil
	}
	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}
	fmt.Fprintf(u.out, "%s\n%s\n  %s\n", title, message, image)
	line, err := u.ask(ctx, hint+" ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "":
		return defaultYes, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// ask reads one trimmed line, giving up when ctx is done.
func (u *terminalUI) ask(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(u.out, prompt)
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := u.in.ReadString('\n')
		if err == io.EOF {
			err = nil
		}
		ch <- result{strings.TrimSpace(line), err}
	}()
	select {
	case r := <-ch:
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
