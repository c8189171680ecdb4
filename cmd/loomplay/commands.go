package main

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/verkaro/loomscript/loom"
)

var rootCmd = &cobra.Command{
	Use:   "loomplay",
	Short: "Run and lint loomscript story files",
	Long: `loomplay is a small player for loomscript, the branching-narrative
scripting language: it reads a script file, follows it, and prompts for
choices at the command line.`,
}

var playCmd = &cobra.Command{
	Use:   "play [script]",
	Short: "Run a story interactively from the terminal",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

var lintCmd = &cobra.Command{
	Use:   "lint [script]",
	Short: "Parse and validate a story, printing any warnings",
	Args:  cobra.ExactArgs(1),
	RunE:  runLint,
}

func init() {
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(lintCmd)
}

func readScript(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	return string(data), nil
}

func runLint(cmd *cobra.Command, args []string) error {
	text, err := readScript(args[0])
	if err != nil {
		return err
	}
	story, err := loom.ReadStoryFromString(text)
	if err != nil {
		pterm.Error.Printfln("%s failed to parse: %v", args[0], err)
		return err
	}
	messages := story.Log()
	if len(messages) == 0 {
		pterm.Success.Printfln("%s: no warnings", args[0])
		return nil
	}
	for _, m := range messages {
		pterm.Warning.Println(m.String())
	}
	return nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	text, err := readScript(args[0])
	if err != nil {
		return err
	}
	story, err := loom.ReadStoryFromString(text)
	if err != nil {
		pterm.Error.Printfln("failed to parse %s: %v", args[0], err)
		return err
	}
	if err := story.Start(); err != nil {
		return err
	}
	return playLoop(story)
}

// playLoop drives Resume/MakeChoice to completion, printing narrative
// lines with pterm.Info and presenting choices with
// pterm.DefaultInteractiveSelect.
func playLoop(story *loom.Story) error {
	var buf []loom.Line
	for {
		buf = buf[:0]
		prompt, err := story.Resume(&buf)
		if err != nil {
			pterm.Error.Println(err.Error())
			return err
		}
		for _, line := range buf {
			pterm.Info.Print(line.Text())
		}

		switch prompt.Kind {
		case loom.PromptDone:
			pterm.Success.Println("-- The End --")
			return nil
		case loom.PromptChoice:
			options := make([]string, len(prompt.Choices))
			for i, c := range prompt.Choices {
				options[i] = c.Text
			}
			selected, err := pterm.DefaultInteractiveSelect.WithOptions(options).Show()
			if err != nil {
				return fmt.Errorf("read choice: %w", err)
			}
			idx := indexOf(options, selected)
			if err := story.MakeChoice(idx); err != nil {
				return err
			}
		}
	}
}

func indexOf(options []string, selected string) int {
	for i, o := range options {
		if o == selected {
			return i
		}
	}
	return 0
}
