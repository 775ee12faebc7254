package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"flock-backend/internal/auth"
	"flock-backend/internal/config"
	"flock-backend/internal/domain/shared"
	"flock-backend/internal/service/linking"
	"flock-backend/internal/service/search"
	"flock-backend/internal/service/similarity"
)

var (
	rankTopK    int
	rankExclude string

	linkTarget string
	linkKind   string
	linkTitle  string
	linkAI     bool

	tokenName string
	tokenTTL  time.Duration
)

var rankCmd = &cobra.Command{
	Use:   "rank <text>",
	Short: "Rank prayers and topics similar to a piece of text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		results, err := container.Search.SearchByText(cmd.Context(), search.TextQuery{
			UserID:    userID,
			Body:      strings.Join(args, " "),
			ExcludeID: rankExclude,
			TopK:      rankTopK,
		})
		if err != nil {
			return err
		}
		return printResults(cmd, results)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the user's prayers",
	RunE: func(cmd *cobra.Command, args []string) error {
		prayers, err := container.Prayers.List(cmd.Context(), userID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), prayers)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tTAG\tLINKED\tVECTOR")
		for _, p := range prayers {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\n", p.ID, p.Title, p.Tag, p.IsLinked(), p.HasVector())
		}
		return w.Flush()
	},
}

var linkCmd = &cobra.Command{
	Use:   "link <prayer-id>",
	Short: "Merge a prayer into a topic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := shared.ParseEntityKind(linkKind)
		if err != nil {
			return err
		}
		res, err := container.Linking.MergeIntoTopic(cmd.Context(), linking.LinkRequest{
			AuthorID:   userID,
			PrayerID:   args[0],
			Target:     shared.EntityRef{Kind: kind, ID: linkTarget},
			TopicTitle: linkTitle,
			AIOptIn:    linkAI,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "linked %s into topic %s (%s)\n", args[0], res.TopicID, res.Resolution)
		return nil
	},
}

var removeVectorCmd = &cobra.Command{
	Use:   "remove-vector <prayer-id>",
	Short: "Clear the stored embedding of a standalone prayer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := shared.EntityRef{Kind: shared.KindPrayer, ID: args[0]}
		if err := container.Lifecycle.RemoveStandaloneVector(cmd.Context(), userID, ref); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed vector from %s\n", args[0])
		return nil
	},
}

var healCmd = &cobra.Command{
	Use:   "heal-vectors",
	Short: "Clear vectors that linked prayers and tombstoned topics still carry",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := container.Lifecycle.Heal(cmd.Context(), userID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), report)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %d prayer vectors, %d topic vectors, %d conflicts\n",
			len(report.VectorsCleared), len(report.TopicsTombstoned), report.Conflicts)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a development bearer token for --user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if userID == "" {
			return fmt.Errorf("--user is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Environment == config.Production {
			return fmt.Errorf("refusing to issue tokens in production")
		}
		token, err := auth.Issue(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, userID, tokenName, tokenTTL, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rankCmd.Flags().IntVarP(&rankTopK, "top-k", "k", 0, "number of results (0 uses the default)")
	rankCmd.Flags().StringVar(&rankExclude, "exclude", "", "prayer id to leave out of the results")

	linkCmd.Flags().StringVar(&linkTarget, "target", "", "id of the prayer or topic to merge with")
	linkCmd.Flags().StringVar(&linkKind, "kind", "prayer", "target kind: prayer or topic")
	linkCmd.Flags().StringVar(&linkTitle, "title", "", "title for a newly created topic")
	linkCmd.Flags().BoolVar(&linkAI, "ai", false, "refresh the topic's AI context")
	_ = linkCmd.MarkFlagRequired("target")

	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}

func printResults(cmd *cobra.Command, results []similarity.Result) error {
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), results)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tID\tSIMILARITY\tTITLE")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Kind, r.ID, r.FormattedSimilarity(), r.Title)
	}
	return w.Flush()
}
