package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	authUseCase "github.com/mesaops/perimeter/internal/auth/usecase"
)

// RunPruneExpired deletes expired revocation entries and retired signing keys
// whose grace window has ended. Safe to run at any time: live credentials and
// the active signing key are never touched.
//
// Requirements: Database must be migrated and accessible.
func RunPruneExpired(
	ctx context.Context,
	tokenUseCase authUseCase.TokenUseCase,
	logger *slog.Logger,
	w io.Writer,
	format string,
) error {
	logger.Info("pruning expired revocations and retired signing keys")

	count, err := tokenUseCase.PruneExpired(ctx)
	if err != nil {
		return fmt.Errorf("failed to prune expired rows: %w", err)
	}

	if format == "json" {
		outputPruneJSON(w, count)
	} else {
		fmt.Fprintf(w, "Successfully deleted %d expired row(s)\n", count)
	}

	logger.Info("prune completed", slog.Int64("count", count))
	return nil
}

// outputPruneJSON outputs the result in JSON format for machine consumption.
func outputPruneJSON(w io.Writer, count int64) {
	result := map[string]interface{}{
		"count": count,
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "failed to marshal JSON: %v\n", err)
		return
	}

	fmt.Fprintln(w, string(jsonBytes))
}
