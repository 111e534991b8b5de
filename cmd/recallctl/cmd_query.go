package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"recall-api/internal/application/answer"
	"recall-api/internal/application/retrieval"
	"recall-api/internal/wire"
)

var (
	askModel   string
	askSession string
	askStream  bool

	searchLimit  int
	searchRerank bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run hybrid retrieval and print ranked chunks",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	askCmd.Flags().StringVar(&askModel, "model", "", "preferred model, bypasses routing")
	askCmd.Flags().StringVar(&askSession, "session", "", "conversation session id")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "print the answer as it is generated")

	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "number of results")
	searchCmd.Flags().BoolVar(&searchRerank, "rerank", false, "apply the reranker")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	kit, cleanup, err := wire.InitializeToolkit(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer cleanup()

	req := answer.Request{
		Query:          strings.Join(args, " "),
		SessionID:      askSession,
		PreferredModel: askModel,
	}
	out := cmd.OutOrStdout()

	var resp *answer.Response
	if askStream {
		resp, err = kit.Answerer.Stream(ctx, req, func(ev answer.Event) error {
			_, werr := io.WriteString(out, ev.Text)
			return werr
		})
		fmt.Fprintln(out)
	} else {
		resp, err = kit.Answerer.Ask(ctx, req)
		if err == nil {
			fmt.Fprintln(out, resp.Answer)
		}
	}
	if err != nil {
		return err
	}
	printSources(out, resp)
	return nil
}

func printSources(w io.Writer, resp *answer.Response) {
	if resp == nil {
		return
	}
	fmt.Fprintf(w, "\n[%s]\n", resp.ModelUsed)
	for i, s := range resp.Sources {
		fmt.Fprintf(w, "%d. %s (%s, %s) %.3f\n", i+1, s.Title, s.Type, s.Date.Format("2006-01-02"), s.Score)
	}
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	kit, cleanup, err := wire.InitializeToolkit(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer cleanup()

	out, err := kit.Engine.Search(ctx, retrieval.SearchInput{
		Query:  strings.Join(args, " "),
		TopK:   searchLimit,
		Rerank: searchRerank,
	})
	if err != nil {
		return err
	}
	printResults(cmd.OutOrStdout(), out)
	return nil
}

func printResults(w io.Writer, out *retrieval.SearchOutput) {
	if out == nil || len(out.Results) == 0 {
		fmt.Fprintln(w, "no results")
		return
	}
	for i, r := range out.Results {
		if r == nil || r.Chunk == nil {
			continue
		}
		speaker := ""
		if r.Chunk.Speaker != nil {
			speaker = " @" + *r.Chunk.Speaker
		}
		fmt.Fprintf(w, "%2d. %.4f %s%s\n    %s\n", i+1, r.Score, r.DocumentTitle, speaker, snippet(r.Chunk.Content, 160))
	}
}

func snippet(s string, maxRunes int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}
