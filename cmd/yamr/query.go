package main

import (
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/frederic-klein/yamr/internal/dist"
	"github.com/frederic-klein/yamr/internal/query"
	"github.com/frederic-klein/yamr/internal/server"
)

func newCompleteCmd(o *options) *cobra.Command {
	var binary string
	cmd := &cobra.Command{
		Use:   "complete <prefix>",
		Short: "List modules whose name starts with prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := o.buildRoot()
			if err != nil {
				return err
			}
			opts, err := binaryOptions(binary)
			if err != nil {
				return err
			}
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			res := query.NewSearchResult()
			if err := root.CompleteModules(cmd.Context(), query.New(prefix, o.targetPlatform(), opts...), res); err != nil {
				return err
			}
			printModules(cmd, res.Results())
			return nil
		},
	}
	cmd.Flags().StringVar(&binary, "binary", "", "Binary version filter, MAJOR or MAJOR.MINOR")
	return cmd
}

func newVersionsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <module> [version]",
		Short: "List the versions of a module",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := o.buildRoot()
			if err != nil {
				return err
			}
			v := ""
			if len(args) == 2 {
				v = args[1]
			}
			res := query.NewVersionResult(args[0])
			if err := root.CompleteVersions(cmd.Context(), query.NewVersionQuery(args[0], v, o.targetPlatform()), res); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, d := range res.Versions() {
				suffixes := make([]string, 0, len(d.ArtifactTypes))
				for _, a := range d.ArtifactTypes {
					suffixes = append(suffixes, a.Suffix)
				}
				tw.Write([]byte(d.Version + "\t" + strings.Join(suffixes, ",") + "\t" + d.Origin + "\n"))
			}
			return tw.Flush()
		},
	}
}

func newSearchCmd(o *options) *cobra.Command {
	var (
		start, count int64
		pagingInfo   string
		member       string
		exact        bool
		packageOnly  bool
		binary       string
	)
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Search modules by name or by the packages and members they declare",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := o.buildRoot()
			if err != nil {
				return err
			}
			opts, err := binaryOptions(binary)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("start") {
				opts = append(opts, query.WithStart(start))
			}
			if flags.Changed("count") {
				opts = append(opts, query.WithCount(count))
			}
			if pagingInfo != "" {
				info, err := server.ParsePagingInfo(pagingInfo)
				if err != nil {
					return err
				}
				opts = append(opts, query.WithPagingInfo(info))
			}
			if member != "" {
				opts = append(opts, query.WithMember(member, exact, packageOnly))
			}
			text := ""
			if len(args) == 1 {
				text = args[0]
			}

			res := query.NewSearchResult()
			if err := root.SearchModules(cmd.Context(), query.New(text, o.targetPlatform(), opts...), res); err != nil {
				return err
			}
			printModules(cmd, res.Results())
			if res.HasMoreResults() {
				next := start + int64(res.Len())
				printf(cmd, "-- more results: --start %d --count %d --paging-info %s\n",
					next, count, server.FormatPagingInfo(res.NextPagingInfo()))
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.Int64Var(&start, "start", 0, "Index of the first result")
	flags.Int64Var(&count, "count", 0, "Maximum number of results")
	flags.StringVar(&pagingInfo, "paging-info", "", "Continuation token printed by the previous page")
	flags.StringVar(&member, "member", "", "Match modules declaring this package or member")
	flags.BoolVar(&exact, "exact", false, "Match --member exactly")
	flags.BoolVar(&packageOnly, "package-only", false, "Match --member against packages only")
	flags.StringVar(&binary, "binary", "", "Binary version filter, MAJOR or MAJOR.MINOR")
	return cmd
}

func binaryOptions(s string) ([]query.Option, error) {
	if s == "" {
		return nil, nil
	}
	opt, err := server.ParseBinaryVersion(s)
	if err != nil {
		return nil, err
	}
	return []query.Option{opt}, nil
}

func printModules(cmd *cobra.Command, modules []dist.ModuleDetails) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, m := range modules {
		tw.Write([]byte(m.Name + "\t" + m.Doc + "\n"))
	}
	tw.Flush()
}
