// Package searchcmder provides the search command for hybrid search
// over memories via a running HMLR API server.
//
// Grounded on the teacher's cmd/tapes/search/search.go: same
// config-driven api-target flag, same lipgloss-styled ranked-result
// rendering, generalized from branch/session display to memory/score
// display since HMLR has no Merkle-DAG branch to walk.
package searchcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bridgeware/hmlr/pkg/config"
	"github.com/bridgeware/hmlr/pkg/logger"
)

var (
	rankStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	scoreStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	previewStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type searchCommander struct {
	query string
	topK  int
	quiet bool

	apiTarget string

	debug  bool
	logger *zap.Logger
}

const searchLongDesc string = `Search stored memories via the HMLR API.

Requires a running HMLR API server with search configured (vector store
and embedder).

Use --quiet to output only memory ids, one per line, for piping into other
commands.

Example:
  hmlr search "what did we decide about the invoice"
  hmlr search "vacation plans" --top 10
  hmlr search "database schema" --quiet`

const searchShortDesc string = "Search stored memories"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("api-target") {
				cmder.apiTarget = cfg.Client.APITarget
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().IntVarP(&cmder.topK, "top", "k", 5, "Number of results to return")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only memory ids, one per line (for piping)")
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", defaults.Client.APITarget, "HMLR API server URL")

	return cmd
}

func (c *searchCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	output, err := SearchAPI(c.apiTarget, c.query, c.topK)
	if err != nil {
		return err
	}

	if output.Count == 0 {
		if !c.quiet {
			fmt.Println("No results found.")
		}
		return nil
	}

	if c.quiet {
		for _, result := range output.Results {
			fmt.Println(result.Memory.MemoryID)
		}
		return nil
	}

	fmt.Printf("\n%s %s\n\n",
		headerStyle.Render("Search Results for:"),
		idStyle.Render(fmt.Sprintf("%q", output.Query)),
	)

	for i, result := range output.Results {
		c.printResult(i+1, result)
	}

	return nil
}

func (c *searchCommander) printResult(rank int, result hybridResult) {
	fmt.Printf("  %s  %s  %s\n",
		rankStyle.Render(fmt.Sprintf("#%d", rank)),
		scoreStyle.Render(fmt.Sprintf("score: %.4f", result.Score)),
		idStyle.Render(result.Memory.MemoryID),
	)

	preview := result.Memory.Content
	if len(preview) > 120 {
		preview = preview[:117] + "..."
	}
	preview = strings.ReplaceAll(preview, "\n", " ")
	fmt.Printf("  %s\n", previewStyle.Render(preview))

	if len(result.Matched) > 0 {
		fmt.Printf("  %s\n", dimStyle.Render("matched: "+strings.Join(result.Matched, ", ")))
	}
	fmt.Println()
}

type hybridResult struct {
	Memory struct {
		MemoryID string `json:"memoryId"`
		Content  string `json:"content"`
	} `json:"Memory"`
	Score   float64  `json:"Score"`
	Matched []string `json:"Matched"`
}

type searchOutput struct {
	Query   string         `json:"query"`
	Count   int            `json:"count"`
	Results []hybridResult `json:"results"`
}

// SearchAPI calls the HMLR search API and returns the parsed output.
// Exported so other commands can reuse it.
func SearchAPI(apiTarget, query string, topK int) (*searchOutput, error) {
	searchURL, err := url.Parse(apiTarget)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	searchURL.Path = "/v1/search"
	q := searchURL.Query()
	q.Set("query", query)
	q.Set("top_k", strconv.Itoa(topK))
	searchURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, searchURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling search API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned %d: %s", resp.StatusCode, string(body))
	}

	var output searchOutput
	if err := json.Unmarshal(body, &output); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	return &output, nil
}
