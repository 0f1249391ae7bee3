package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/52poke/voicenotes/internal/config"
	"github.com/52poke/voicenotes/internal/dictation"
	"github.com/52poke/voicenotes/internal/lang"
	"github.com/52poke/voicenotes/internal/notes"
	"github.com/52poke/voicenotes/internal/push"
)

const maxDictationRestarts = 3

type notesEnv struct {
	cfg      config.Config
	svc      *notes.Service
	notifier push.Notifier
}

func (e *notesEnv) locale() language.Tag {
	return lang.FromAcceptLanguage(e.cfg.Language)
}

// announce sends the note-saved notification. Delivery is best effort.
func (e *notesEnv) announce(ctx context.Context, title string) {
	if err := e.notifier.ShowNotification(ctx, push.NoteSaved(e.locale(), title)); err != nil {
		log.Printf("notes: saved notification: %v", err)
	}
}

func newNotesCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Manage locally stored notes",
	}

	withService := func(run func(cmd *cobra.Command, env *notesEnv, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			d := &deps{}
			defer d.close()
			svc, err := openNotes(cfg, d)
			if err != nil {
				return err
			}
			return run(cmd, &notesEnv{cfg: cfg, svc: svc, notifier: d.notifier(cfg)}, args)
		}
	}

	var query string
	list := &cobra.Command{
		Use:   "list",
		Short: "List notes, newest first",
		RunE: withService(func(cmd *cobra.Command, env *notesEnv, _ []string) error {
			found, err := env.svc.List(cmd.Context(), query)
			if err != nil {
				return err
			}
			for _, n := range found {
				cmd.Printf("%s  %s  %s\n", n.ID, n.CreatedAt.Local().Format("2006-01-02 15:04"), n.Title)
			}
			return nil
		}),
	}
	list.Flags().StringVarP(&query, "search", "s", "", "only notes whose title or content contains this text")

	var title string
	add := &cobra.Command{
		Use:   "add [content...]",
		Short: "Save a note",
		Args:  cobra.MinimumNArgs(1),
		RunE: withService(func(cmd *cobra.Command, env *notesEnv, args []string) error {
			n, err := env.svc.Create(cmd.Context(), title, strings.Join(args, " "))
			if err != nil {
				return err
			}
			env.announce(cmd.Context(), title)
			cmd.Println(n.ID)
			return nil
		}),
	}
	add.Flags().StringVarP(&title, "title", "t", "", "note title")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a note",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, env *notesEnv, args []string) error {
			n, err := env.svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("%s\n%s\n\n%s\n", n.Title, n.CreatedAt.Local().Format("2006-01-02 15:04"), n.Content)
			return nil
		}),
	}

	var editTitle string
	edit := &cobra.Command{
		Use:   "edit <id> [content...]",
		Short: "Replace a note's title and content",
		Args:  cobra.MinimumNArgs(2),
		RunE: withService(func(cmd *cobra.Command, env *notesEnv, args []string) error {
			_, err := env.svc.Update(cmd.Context(), args[0], editTitle, strings.Join(args[1:], " "))
			return err
		}),
	}
	edit.Flags().StringVarP(&editTitle, "title", "t", "", "note title")

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, env *notesEnv, args []string) error {
			return env.svc.Delete(cmd.Context(), args[0])
		}),
	}

	var dictTitle string
	dictate := &cobra.Command{
		Use:   "dictate",
		Short: "Read recognised text line by line from stdin and save it as a note",
		RunE: withService(func(cmd *cobra.Command, env *notesEnv, _ []string) error {
			engine := dictation.NewLineEngine(os.Stdin)
			session := dictation.New(engine, maxDictationRestarts)
			engine.Listener = session

			if err := session.Start(cmd.Context()); err != nil {
				return err
			}
			select {
			case <-engine.Done():
			case <-cmd.Context().Done():
			}
			if err := session.Stop(); err != nil {
				return err
			}
			if err := session.Err(); err != nil {
				return fmt.Errorf("dictation: %w", err)
			}

			n, err := env.svc.Create(cmd.Context(), dictTitle, session.Transcript())
			if err != nil {
				return err
			}
			env.announce(cmd.Context(), dictTitle)
			cmd.Printf("%s %s\n", lang.Text(env.locale(), lang.KeySaved), n.ID)
			return nil
		}),
	}
	dictate.Flags().StringVarP(&dictTitle, "title", "t", "", "note title")

	cmd.AddCommand(list, add, show, edit, rm, dictate)
	return cmd
}
