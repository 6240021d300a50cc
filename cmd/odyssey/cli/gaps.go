package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/odyssey-erp/odyssey-access/internal/onboarding"
)

// GapLister reads open provisioning gaps.
type GapLister interface {
	OpenGaps(ctx context.Context, maxAttempts, limit int) ([]onboarding.Gap, error)
}

// GapsCLI reports users left under-provisioned by onboarding.
type GapsCLI struct {
	store GapLister
}

// NewGapsCLI constructs the helper.
func NewGapsCLI(store GapLister) (*GapsCLI, error) {
	if store == nil {
		return nil, fmt.Errorf("gaps cli: store is required")
	}
	return &GapsCLI{store: store}, nil
}

// GapsOptions defines flags for the gaps command.
type GapsOptions struct {
	Limit int
	// Exhausted also lists gaps the reconciler stopped retrying.
	Exhausted  bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// GapsSummary is the JSON output of the gaps command.
type GapsSummary struct {
	OK   bool             `json:"ok"`
	Gaps []onboarding.Gap `json:"gaps"`
}

// ListCommand prints open gaps. It exits 10 when any gap is open.
func (c *GapsCLI) ListCommand(ctx context.Context, opts GapsOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	maxAttempts := onboarding.MaxGapAttempts
	if opts.Exhausted {
		maxAttempts = int(^uint(0) >> 1)
	}
	gaps, err := c.store.OpenGaps(ctx, maxAttempts, opts.Limit)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "gaps: %v\n", err)
		return 1
	}
	sort.SliceStable(gaps, func(i, j int) bool {
		if gaps[i].UserID == gaps[j].UserID {
			return gaps[i].CreatedAt.Before(gaps[j].CreatedAt)
		}
		return gaps[i].UserID < gaps[j].UserID
	})
	if gaps == nil {
		gaps = []onboarding.Gap{}
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(GapsSummary{OK: len(gaps) == 0, Gaps: gaps}); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "gaps: encode json: %v\n", err)
			return 1
		}
	} else {
		renderGapsHuman(opts.Stdout, gaps)
	}
	if len(gaps) > 0 {
		return 10
	}
	return 0
}

func renderGapsHuman(out io.Writer, gaps []onboarding.Gap) {
	if len(gaps) == 0 {
		_, _ = fmt.Fprintln(out, "No open provisioning gaps.")
		return
	}
	_, _ = fmt.Fprintf(out, "%d open gap(s):\n", len(gaps))
	for _, gap := range gaps {
		ref := gap.RefID
		if ref == "" {
			ref = "-"
		}
		_, _ = fmt.Fprintf(out, " - user %s %s %s (attempts %d): %s\n", gap.UserID, gap.Kind, ref, gap.Attempts, gap.LastError)
	}
}
